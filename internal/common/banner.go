package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// Version is overridden at build time with -ldflags "-X alphascreen/internal/common.Version=..."
var Version = "dev"

// PrintBanner writes the service startup banner to stderr and logs the same details
func PrintBanner(logger arbor.ILogger, details [][2]string) {
	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	hr := lineColor + strings.Repeat("═", 60) + banner.ColorReset

	fmt.Fprintf(os.Stderr, "\n%s\n\n", hr)
	fmt.Fprintf(os.Stderr, "%s  ALPHASCREEN %s%s\n", textColor, Version, banner.ColorReset)
	fmt.Fprintf(os.Stderr, "%s  NSE Equity Screener%s\n\n", textColor, banner.ColorReset)
	for _, kv := range details {
		fmt.Fprintf(os.Stderr, "%s  %-14s %s%s\n", textColor, kv[0], kv[1], banner.ColorReset)
	}
	fmt.Fprintf(os.Stderr, "\n%s\n\n", hr)

	ev := logger.Info().Str("version", Version)
	for _, kv := range details {
		ev = ev.Str(strings.ToLower(strings.ReplaceAll(kv[0], " ", "_")), kv[1])
	}
	ev.Msg("Service started")
}

// PrintShutdownBanner writes the shutdown banner to stderr
func PrintShutdownBanner(logger arbor.ILogger) {
	hr := banner.ColorCyan + strings.Repeat("═", 36) + banner.ColorReset
	fmt.Fprintf(os.Stderr, "\n%s\n%s  ALPHASCREEN SHUTTING DOWN%s\n%s\n\n", hr, banner.ColorBold+banner.ColorWhite, banner.ColorReset, hr)
	logger.Info().Msg("Service shutting down")
}
