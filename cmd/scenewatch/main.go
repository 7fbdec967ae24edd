// Command scenewatch is the thin CLI shell around internal/app: argument
// parsing, device selection and signal handling. None of this is part of
// the core pipeline; it exists so the collector is actually runnable.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/gopacket/pcap"
	"go.uber.org/zap"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/app"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/logging"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	device, logLevel := parseArgs(os.Args[1:])

	log := logging.New(logLevel == "debug")
	defer log.Sync() //nolint:errcheck

	resolvedDevice, err := resolveDevice(device, log)
	if err != nil {
		log.Error("failed to resolve capture device", zap.Error(err))
		return 1
	}

	a, err := app.New(app.Config{
		Device:       resolvedDevice,
		Version:      version,
		CachePath:    "./users.json",
		LogsDir:      "./logs",
		SettingsPath: "./settings.json",
	}, log)
	if err != nil {
		log.Error("failed to start", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	<-ctx.Done()
	log.Info("shutdown signal received, flushing state")

	if err := a.Shutdown(); err != nil {
		log.Error("error during shutdown", zap.Error(err))
		return 1
	}

	if err := <-runErr; err != nil && ctx.Err() == nil {
		log.Error("server exited with error", zap.Error(err))
		return 1
	}

	return 0
}

// parseArgs implements the `<program> [<device> [<log_level>]]` contract:
// a bare index or the literal "auto" for device, "info"/"debug" for level.
// Missing or invalid values fall through to their defaults/prompts.
func parseArgs(args []string) (device, logLevel string) {
	logLevel = "info"

	if len(args) > 0 {
		device = args[0]
	}
	if len(args) > 1 && (args[1] == "info" || args[1] == "debug") {
		logLevel = args[1]
	}

	return device, logLevel
}

// resolveDevice turns the raw CLI token into a pcap device name: "auto"
// triggers traffic-based auto-detection, a numeric token indexes the
// enumerated device list, anything else (or nothing) falls back to an
// interactive prompt.
func resolveDevice(token string, log *zap.Logger) (string, error) {
	if token == "auto" {
		log.Info("auto-detecting capture device")
		return app.AutoDetectDevice()
	}

	devices, err := app.ListDevices()
	if err != nil {
		return "", fmt.Errorf("list capture devices: %w", err)
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("no capture devices available")
	}

	if idx, err := strconv.Atoi(token); err == nil && idx >= 0 && idx < len(devices) {
		return devices[idx].Name, nil
	}

	return promptForDevice(devices)
}

// promptForDevice prints the enumerated device list and reads a single
// line of input naming an index, retrying on invalid input.
func promptForDevice(devices []pcap.Interface) (string, error) {
	fmt.Println("Select a capture device:")
	for i, dev := range devices {
		desc := dev.Description
		if desc == "" {
			desc = "no description"
		}
		fmt.Printf("  [%d] %s (%s)\n", i, dev.Name, desc)
	}

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("device index: ")
		if !scanner.Scan() {
			return "", fmt.Errorf("no input available for device selection")
		}

		idx, err := strconv.Atoi(scanner.Text())
		if err != nil || idx < 0 || idx >= len(devices) {
			fmt.Println("invalid index, try again")
			continue
		}

		return devices[idx].Name, nil
	}
}
