// Command elm327session is a demo CLI driving the session manager against a
// real BLE adapter: connect to a device, issue one AT/OBD command, and
// print the decoded response.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/obd327/elm327session/internal/config"
	"github.com/obd327/elm327session/internal/monitor"
	"github.com/obd327/elm327session/internal/session"
	"github.com/obd327/elm327session/internal/transport"
	"github.com/obd327/elm327session/internal/transport/gattble"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/elm327session/config.yaml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	command := flag.String("send", "ATZ", "command to send once connected")
	stream := flag.Bool("stream", false, "keep the session connected and enable streaming mode")
	flag.Parse()

	if *showVersion {
		fmt.Printf("elm327session %s\n", version)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		os.Exit(1)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.LogLevel)})
	slog.SetDefault(slog.New(handler))

	printBanner(cfg)

	cmdTimeout, streamingInactivity, watchdogTick := cfg.Session.Timeouts()
	opts := session.Options{
		DefaultCommandTimeout: cmdTimeout,
		StreamingInactivity:   streamingInactivity,
		WatchdogTick:          watchdogTick,
	}

	sess := session.New(gattble.New(), opts)

	var mon *monitor.Server
	if cfg.Monitor.Enabled {
		mon = monitor.NewServer(sess, cfg.Monitor.Addr)
		go func() {
			slog.Info("monitor listening", "addr", cfg.Monitor.Addr)
			if err := mon.Serve(); err != nil {
				slog.Warn("monitor server stopped", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := sess.Initialize(ctx); err != nil {
		slog.Error("initialize failed", "error", err)
		os.Exit(1)
	}

	if !sess.QueryAdapterState() {
		slog.Error("bluetooth adapter is off")
		os.Exit(1)
	}

	device := transport.DeviceID(cfg.DeviceID)
	peripheral, err := sess.Connect(ctx, device)
	if err != nil {
		slog.Error("connect failed", "error", err, "device", cfg.DeviceID)
		os.Exit(1)
	}
	slog.Info("connected", "device", cfg.DeviceID, "profile", peripheral.Config.Profile.Label)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if *stream {
		if err := sess.SetStreaming(true); err != nil {
			slog.Error("enable streaming failed", "error", err)
		}
	}

	resp, err := sess.Send(ctx, *command, session.ShapeString, 0)
	if err != nil {
		slog.Error("send failed", "error", err, "command", *command)
	} else {
		fmt.Printf("%s -> %s\n", *command, resp.Text)
	}

	if !*stream {
		shutdown(sess, mon)
		return
	}

	slog.Info("streaming; press Ctrl+C to disconnect and exit")
	<-sigCh
	slog.Info("shutting down")
	shutdown(sess, mon)
}

func shutdown(sess *session.Session, mon *monitor.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sess.Disconnect(ctx); err != nil {
		slog.Warn("disconnect error", "error", err)
	}
	if err := sess.Close(); err != nil {
		slog.Warn("close error", "error", err)
	}
	if mon != nil {
		if err := mon.Shutdown(ctx); err != nil {
			slog.Warn("monitor shutdown error", "error", err)
		}
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults. On first run it
// writes a default config file for the caller to fill in.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		slog.Info("config loaded", "path", defaultPath)
		return cfg, nil
	}

	if created, err := config.WriteDefault(""); err != nil {
		slog.Warn("could not write default config", "error", err)
	} else if created != "" {
		slog.Info("created default config, set device_id and rerun", "path", created)
	}

	return config.Default(), nil
}

func printBanner(cfg *config.Config) {
	fmt.Println("=== elm327session ===")
	fmt.Printf("  Version: %s\n", version)
	fmt.Printf("  Device:  %s\n", cfg.DeviceID)
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Printf("  Monitor: enabled=%v addr=%s\n", cfg.Monitor.Enabled, cfg.Monitor.Addr)
	fmt.Println("======================")
}
