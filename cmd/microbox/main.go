//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sakamoro/alice-container/container"
	"github.com/sakamoro/alice-container/logger"
	"github.com/sakamoro/alice-container/options"
	"github.com/sakamoro/alice-container/telemetry"
)

func main() {
	opts, err := options.ParseCli(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parsing error:", err)
		os.Exit(1)
	} else if opts == nil {
		os.Exit(0)
	}

	log := logger.CreateLogger(&logger.LoggerOpts{
		LogLevel:  opts.LogLevel,
		LogFormat: opts.LogFormat,
	}, slog.String("container_id", opts.ID))
	log.Info("options", slog.Any("id", opts.ID), slog.Any("config", opts.Config))

	box, err := container.Create(opts.ID, opts.Config, log)
	if err != nil {
		log.Error("error while creating container", slog.Any("err", err))
		os.Exit(1)
	}
	box.SetTelemetryBridge(telemetry.NewSlogBridge(log))
	defer func() {
		if err := box.Destroy(); err != nil {
			log.Warn("error while destroying container", slog.Any("err", err))
		}
	}()

	if err := box.Start(); err != nil {
		log.Error("error while starting container", slog.Any("err", err))
		os.Exit(1)
	}

	code, err := box.Wait()
	if err != nil {
		log.Error("error while waiting for container", slog.Any("err", err))
		os.Exit(1)
	}

	os.Exit(code)
}
