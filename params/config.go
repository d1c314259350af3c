package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Venues struct {
	// Names of the venues registered at startup, one fresh book each.
	Names []string
	// DefaultDepth is used by depth endpoints when the caller gives none.
	DefaultDepth int
}

type API struct {
	Addr        string
	CORSOrigins []string
}

type Sinks struct {
	// LogFile receives the JSON log alongside stdout.
	LogFile string
	// TapePath is the Pebble directory for the trade tape. Empty disables it.
	TapePath string
	// KafkaBrokers enables the event publisher when non-empty.
	KafkaBrokers []string
	KafkaTopic   string
}

// Feeder drives synthetic order flow into the venues, for demos and load tests.
type Feeder struct {
	Enabled bool
	Mode    string // "default" or "high"
}

type Config struct {
	Venues  Venues
	API     API
	Sinks   Sinks
	Feeder  Feeder
	Verbose bool
}

func Default() Config {
	return Config{
		Venues: Venues{
			Names:        []string{"A", "B"},
			DefaultDepth: 10,
		},
		API: API{
			Addr:        ":8080",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Sinks: Sinks{
			LogFile:    "data/venued.log",
			KafkaTopic: "venue-events",
		},
		Feeder: Feeder{Mode: "default"},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if names := splitList(os.Getenv("VENUES")); len(names) > 0 {
		cfg.Venues.Names = names
	}
	if depth := os.Getenv("DEFAULT_DEPTH"); depth != "" {
		if n, err := strconv.Atoi(depth); err == nil && n > 0 {
			cfg.Venues.DefaultDepth = n
		}
	}

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	if origins := splitList(os.Getenv("CORS_ORIGINS")); len(origins) > 0 {
		cfg.API.CORSOrigins = origins
	}

	cfg.Sinks.LogFile = getEnv("LOG_FILE", cfg.Sinks.LogFile)
	cfg.Sinks.TapePath = getEnv("TAPE_PATH", cfg.Sinks.TapePath)
	cfg.Sinks.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
	cfg.Sinks.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.Sinks.KafkaTopic)

	cfg.Feeder.Enabled = os.Getenv("ENABLE_FEEDER") == "true"
	cfg.Feeder.Mode = getEnv("FEEDER_MODE", cfg.Feeder.Mode)

	if verbose := os.Getenv("VERBOSE"); verbose != "" {
		cfg.Verbose = verbose == "true"
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList parses a comma-separated list, e.g. "A,B,C".
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
