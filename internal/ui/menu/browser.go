package menu

import (
	"fmt"
	"os/exec"
	"runtime"
)

// OpenBrowser opens url with the desktop's default handler.
func OpenBrowser(url string) error {
	cmd, args := browserCommand(runtime.GOOS, url)
	if cmd == "" {
		return fmt.Errorf("opening a browser is not supported on %s", runtime.GOOS)
	}
	return exec.Command(cmd, args...).Start()
}

func browserCommand(goos, url string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{url}
	}
	return "", nil
}
