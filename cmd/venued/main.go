package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap/zapcore"

	"github.com/uhyunpark/multivenue/params"
	"github.com/uhyunpark/multivenue/pkg/api"
	"github.com/uhyunpark/multivenue/pkg/feeder"
	"github.com/uhyunpark/multivenue/pkg/storage"
	"github.com/uhyunpark/multivenue/pkg/stream"
	"github.com/uhyunpark/multivenue/pkg/util"
	"github.com/uhyunpark/multivenue/pkg/venue"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file)
	level := zapcore.InfoLevel
	if cfg.Verbose {
		level = zapcore.DebugLevel
	}
	logger, err := util.NewLoggerWithFile(cfg.Sinks.LogFile, level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Sinks.LogFile, "verbose", cfg.Verbose)

	// ---- Listeners ----
	hub := api.NewHub(sugar.Named("ws"))
	opts := []venue.Option{
		venue.WithListener(util.TradeLogger{Log: sugar.Named("book")}),
		venue.WithListener(hub),
	}

	var tape *storage.TradeTape
	if cfg.Sinks.TapePath != "" {
		tape, err = storage.OpenTradeTape(cfg.Sinks.TapePath, nil, util.RealClock{}, sugar.Named("tape"))
		if err != nil {
			sugar.Fatalw("tape_open_failed", "path", cfg.Sinks.TapePath, "err", err)
		}
		defer tape.Close()
		opts = append(opts, venue.WithListener(tape))
		sugar.Infow("tape_enabled", "path", cfg.Sinks.TapePath, "session", tape.Session())
	}

	if len(cfg.Sinks.KafkaBrokers) > 0 {
		pub := stream.NewPublisher(cfg.Sinks.KafkaBrokers, cfg.Sinks.KafkaTopic, util.RealClock{}, sugar.Named("kafka"))
		defer pub.Close()
		opts = append(opts, venue.WithListener(pub))
		sugar.Infow("kafka_enabled", "brokers", cfg.Sinks.KafkaBrokers, "topic", cfg.Sinks.KafkaTopic)
	}

	// ---- Venues ----
	venues := venue.New(opts...)
	for _, name := range cfg.Venues.Names {
		if err := venues.Register(name, nil); err != nil {
			sugar.Fatalw("venue_register_failed", "venue", name, "err", err)
		}
	}
	sugar.Infow("venues_ready", "venues", venues.Names())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	apiServer := api.NewServer(venues, hub, cfg, sugar.Named("api"))
	if tape != nil {
		apiServer.SetTape(tape)
	}

	// ---- Feeder (optional) ----
	// Enable with: ENABLE_FEEDER=true FEEDER_MODE=default|high
	if cfg.Feeder.Enabled {
		feedCfg := feeder.DefaultConfig(venues.Names())
		if cfg.Feeder.Mode == "high" {
			feedCfg = feeder.HighLoadConfig(venues.Names())
		}
		cancelFeeder, err := feeder.Start(ctx, apiServer, feedCfg, sugar.Named("feeder"))
		if err != nil {
			sugar.Errorw("feeder_start_failed", "err", err)
			return
		}
		defer cancelFeeder()
	}

	if err := apiServer.Start(ctx, cfg.API.Addr); err != nil {
		sugar.Errorw("api_server_failed", "err", err)
		return
	}
	sugar.Info("shutdown_complete")
}
