package modeswitcher

import (
	"os"
	"os/exec"
	"runtime"

	"github.com/skywave-sdr/payload/internal/payloaderr"
)

// SystemAction is one of the {Reboot, Shutdown, Restart} system-control
// commands of spec §4.5/§6.
type SystemAction int

const (
	Reboot SystemAction = iota
	Shutdown
	Restart
)

// SystemControl maps action to the OS-specific invocation. Restart
// terminates the current process with exit code 0; Reboot/Shutdown call
// sudo systemctl on POSIX and shutdown.exe on Windows. An unsupported
// host returns a Failed error.
func SystemControl(action SystemAction) error {
	switch action {
	case Restart:
		os.Exit(0)
		return nil
	case Reboot:
		return invoke(posixCmd("reboot"), windowsCmd("/r"))
	case Shutdown:
		return invoke(posixCmd("poweroff"), windowsCmd("/s"))
	default:
		return payloaderr.New(payloaderr.Unsupported, "unknown system action")
	}
}

func posixCmd(verb string) *exec.Cmd {
	return exec.Command("sudo", "systemctl", verb)
}

func windowsCmd(flag string) *exec.Cmd {
	return exec.Command("shutdown", flag, "/t", "0")
}

func invoke(posix, windows *exec.Cmd) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd":
		cmd = posix
	case "windows":
		cmd = windows
	default:
		return payloaderr.New(payloaderr.Failed, "unsupported host for system control: "+runtime.GOOS)
	}
	if err := cmd.Run(); err != nil {
		return payloaderr.Wrap(payloaderr.Failed, "system control command failed", err)
	}
	return nil
}
