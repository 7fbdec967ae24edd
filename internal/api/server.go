package api

import (
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// basePort is the first port the server attempts to bind; spec.md §4.9
// says start at 8989 and increment until a bind succeeds.
const basePort = 8989

// maxPortAttempts bounds the search so a persistently hostile environment
// fails loudly instead of scanning forever.
const maxPortAttempts = 100

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// Listen finds the first free port at or above basePort and returns a
// listener bound to it, retrying on "address in use" as spec.md directs.
func Listen() (net.Listener, int, error) {
	for port := basePort; port < basePort+maxPortAttempts; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
		if err == nil {
			return ln, port, nil
		}
	}

	return nil, 0, fmt.Errorf("no free port found starting at %d", basePort)
}

// OpenBrowser best-effort launches the OS default browser at url. Failures
// are logged, never fatal (spec.md §4.9).
func OpenBrowser(url string, log *zap.Logger) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	if err := cmd.Start(); err != nil && log != nil {
		log.Debug("failed to launch browser", zap.Error(err), zap.String("url", url))
	}
}
