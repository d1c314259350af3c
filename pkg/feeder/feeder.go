package feeder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/multivenue/pkg/venue"
)

// Executor runs fn with exclusive access to the venues.
type Executor interface {
	Do(fn func(*venue.MultiVenueBook))
}

// Config controls order generation rate
type Config struct {
	BatchSize int           // Number of actions per batch
	Interval  time.Duration // How often to generate batches
	Venues    []string      // Venues to trade
	Seed      int64
}

// DefaultConfig returns reasonable defaults for testing
func DefaultConfig(venues []string) Config {
	return Config{
		BatchSize: 10,
		Interval:  100 * time.Millisecond, // ~100 actions/sec
		Venues:    venues,
		Seed:      time.Now().UnixNano(),
	}
}

// HighLoadConfig returns config for stress testing
func HighLoadConfig(venues []string) Config {
	return Config{
		BatchSize: 100,
		Interval:  10 * time.Millisecond, // ~10k actions/sec
		Venues:    venues,
		Seed:      time.Now().UnixNano(),
	}
}

// Start feeds synthetic flow through exec until ctx is cancelled or the
// returned cancel function is called.
func Start(ctx context.Context, exec Executor, cfg Config, log *zap.SugaredLogger) (context.CancelFunc, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	gen, err := NewGenerator(cfg.Venues, cfg.Seed)
	if err != nil {
		return nil, err
	}
	feedCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		startTime := time.Now()
		lastReport := startTime

		log.Infow("feeder_started", "batch", cfg.BatchSize, "interval", cfg.Interval, "venues", cfg.Venues)

		for {
			select {
			case <-feedCtx.Done():
				var stats Stats
				exec.Do(func(*venue.MultiVenueBook) { stats = gen.Stats })
				log.Infow("feeder_stopped", "elapsed", time.Since(startTime).Round(time.Second), "stats", stats)
				return

			case <-ticker.C:
				var err error
				exec.Do(func(mv *venue.MultiVenueBook) {
					err = gen.GenerateBatch(mv, cfg.BatchSize)
				})
				if err != nil {
					log.Errorw("feeder_batch_failed", "err", err)
					continue
				}

				if time.Since(lastReport) >= 10*time.Second {
					lastReport = time.Now()
					var stats Stats
					exec.Do(func(*venue.MultiVenueBook) { stats = gen.Stats })
					log.Infow("feeder_stats", "stats", stats)
				}
			}
		}
	}()

	return cancel, nil
}
