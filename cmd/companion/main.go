// Companion - voice conversation partner with a persona, speaking in turns
// with a remote chat model.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/teslashibe/go-companion/internal/config"
	clog "github.com/teslashibe/go-companion/internal/log"
	"github.com/teslashibe/go-companion/pkg/companion"
)

func main() {
	configFile := flag.String("config", "", "Path to config file (default: search ./companion.yaml, ./configs, /etc/companion)")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	text := flag.Bool("text", false, "Read utterances from stdin instead of the microphone")
	flag.Parse()

	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}
	if *text {
		cfg.Capture.Mode = config.CaptureText
	}

	logger := clog.Init(cfg.Logging.Level, cfg.Logging.Format)

	app, err := companion.New(cfg, companion.WithLogger(logger))
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		log.Fatalf("❌ Initialization failed: %v", err)
	}

	err = app.Run(ctx)
	app.Shutdown()
	if err != nil {
		log.Fatalf("❌ Runtime error: %v", err)
	}
	clog.Component("main").Info("bye")
}
