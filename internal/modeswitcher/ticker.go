package modeswitcher

import "time"

// cooperativeTicker runs fn on a fixed period, never overlapping calls to
// fn and never queueing a missed fire — the caller's fn is itself
// responsible for the single-flight skip accounting (spec §4.5, design
// note "Timer"). Stop blocks until any in-flight fn call and the
// scheduling goroutine have both exited, so a caller can safely dispose
// of state fn closed over immediately afterward.
type cooperativeTicker struct {
	ticker *time.Ticker
	stop   chan struct{}
	done   chan struct{}
}

func startTicker(period time.Duration, fn func()) *cooperativeTicker {
	t := &cooperativeTicker{
		ticker: time.NewTicker(period),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		for {
			select {
			case <-t.stop:
				t.ticker.Stop()
				return
			case <-t.ticker.C:
				fn()
			}
		}
	}()
	return t
}

// Stop disposes of the ticker and awaits the scheduling goroutine's exit.
func (t *cooperativeTicker) Stop() {
	close(t.stop)
	<-t.done
}

const minTickPeriod = 30 * time.Millisecond

// clampPeriod converts a rate in Hz into the tick period, clamped to a
// floor of 30ms (spec §4.5, §8 boundary test).
func clampPeriod(rateHz float32) time.Duration {
	if rateHz <= 0 {
		return minTickPeriod
	}
	period := time.Duration(float64(time.Second) / float64(rateHz))
	if period < minTickPeriod {
		return minTickPeriod
	}
	return period
}

// clampRatio enforces a minimum sending-thinning ratio of 1 (spec §8).
func clampRatio(ratio uint32) uint32 {
	if ratio == 0 {
		return 1
	}
	return ratio
}
