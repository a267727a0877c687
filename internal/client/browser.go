package client

import (
	"fmt"
	"os/exec"
	"runtime"

	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
)

// OpenBrowser opens the verification URL in the default browser. This is
// advisory only: the flow stays completable by visiting the verification
// URI and typing the user code by hand, so callers log failures and move on.
func OpenBrowser(url string) error {
	if err := open.Run(url); err == nil {
		return nil
	}
	return openPlatformSpecific(url)
}

// openPlatformSpecific is the fallback when the open library fails.
func openPlatformSpecific(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "linux":
		for _, browser := range []string{"xdg-open", "x-www-browser", "firefox", "chromium"} {
			if _, err := exec.LookPath(browser); err == nil {
				cmd = exec.Command(browser, url)
				break
			}
		}
		if cmd == nil {
			return fmt.Errorf("no suitable browser found")
		}
	default:
		return fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start browser command: %w", err)
	}
	log.WithField("command", cmd.Path).Debug("opened verification URL in browser")
	return nil
}
