package oidcprovider

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// OpenBrowser prints authURL and tries to open it with the platform's URL handler
func OpenBrowser(authURL string) error {
	fmt.Fprintf(os.Stderr, "Open the following URL to log in:\n\n  %s\n\n", authURL)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", authURL)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", authURL)
	default:
		cmd = exec.Command("xdg-open", authURL)
	}
	// A missing handler is not fatal, the URL has been printed
	_ = cmd.Start()
	return nil
}
