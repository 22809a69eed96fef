package main

import (
	"sync"

	"github.com/skywave-sdr/payload/internal/modeswitcher"
	"github.com/skywave-sdr/payload/internal/telemetry"
	"github.com/skywave-sdr/payload/internal/workmode"
)

// lazyRequester and lazySender break the construction cycle between the
// MAVLink transport (which needs a live Switcher/Telemetry to build) and
// Switcher/Telemetry (which each need a collaborator the transport
// implements). Both are bound once the transport exists, mirroring the
// teacher's own deferred-binding pattern for its MAVLink client
// (server.Dependencies.SetMAVLinkClient) rather than restructuring either
// package around a setter.
type lazyRequester struct {
	mu     sync.RWMutex
	target telemetry.StreamRequester
}

func (l *lazyRequester) bind(t telemetry.StreamRequester) {
	l.mu.Lock()
	l.target = t
	l.mu.Unlock()
}

func (l *lazyRequester) RequestDataStreams(systemID, componentID uint8, rateHz int) error {
	l.mu.RLock()
	t := l.target
	l.mu.RUnlock()
	if t == nil {
		return nil
	}
	return t.RequestDataStreams(systemID, componentID, rateHz)
}

type lazySender struct {
	mu     sync.RWMutex
	target modeswitcher.Sender
}

func (l *lazySender) bind(s modeswitcher.Sender) {
	l.mu.Lock()
	l.target = s
	l.mu.Unlock()
}

func (l *lazySender) Send(mode workmode.Mode, entry workmode.Entry) error {
	l.mu.RLock()
	s := l.target
	l.mu.RUnlock()
	if s == nil {
		return nil
	}
	return s.Send(mode, entry)
}
