package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roman-kulish/flight-instruments/cmd/dashboard/app"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	var configPath, mediaPath string
	flag.StringVar(&configPath, "c", "", "Path to the configuration file")
	flag.StringVar(&mediaPath, "media", "", "Directory to store pictures taken from the camera, overrides media.path")
	flag.Parse()

	config := app.NewConfig()
	if configPath != "" {
		var err error
		if config, err = app.LoadConfig(configPath); err != nil {
			logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", configPath))
			os.Exit(1)
		}
	}

	if mediaPath != "" {
		config.Media.Path = mediaPath
	}

	level, _ := config.Settings.Level()
	logLevel.Set(level)

	var logOutput io.Writer = os.Stdout
	switch {
	case config.Settings.LogFile != "":
		f, err := os.OpenFile(config.Settings.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.Error(fmt.Sprintf("failed to open log file: %s", err.Error()), slog.String("path", config.Settings.LogFile))
			os.Exit(1)
		}
		defer f.Close()
		logOutput = f

	case config.Settings.Terminal:
		logOutput = io.Discard // the terminal surface owns stdout
	}
	logger = slog.New(slog.NewTextHandler(logOutput, &slog.HandlerOptions{Level: &logLevel}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, config, logger); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}
