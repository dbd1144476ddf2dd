package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/smartvideo/ytdlp-bridge/bridge"
	"github.com/smartvideo/ytdlp-bridge/bridge/config"

	"github.com/spf13/viper"
)

func main() {
	// Parse optional config path from flag
	var configFile string
	flag.StringVar(&configFile, "conf", "./config.yml", "Config file path")
	flag.Parse()

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 3044)
	v.SetDefault("logging.level", "info")
	v.SetDefault("paths.helper_path", "ytdlp-helper")
	v.SetDefault("paths.download_path", ".")
	v.SetDefault("paths.local_database_path", ".")
	v.SetDefault("authentication.require_auth", false)
	v.SetDefault("auto_archive", true)

	// Env binding
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	// Load YAML file if exists
	if err := v.ReadInConfig(); err != nil {
		slog.Debug("using defaults")
	}

	cfg := config.Instance()
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to load config", "error", err)
	}

	level := slog.LevelInfo
	if cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting bridge",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"helper", cfg.Paths.HelperPath,
	)

	if err := bridge.Run(ctx); err != nil {
		slog.Error("bridge stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("bridge exited cleanly")
}
