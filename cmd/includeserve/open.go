package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
)

// browserCommand returns the command that opens url in the desktop's default
// browser on goos.
func browserCommand(goos, url string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "xdg-open", []string{url}
	}
}

func openBrowser(ctx context.Context, logger *slog.Logger, url string) {
	name, args := browserCommand(runtime.GOOS, url)
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		logger.WarnContext(ctx, "includeserve: could not open browser", "url", url, "error", fmt.Errorf("%s: %w", name, err))
		return
	}
	go func() {
		_ = cmd.Wait()
	}()
}
