package util

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/uhyunpark/multivenue/pkg/book"
)

func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// NewLoggerWithFile creates a logger that writes to both console and a file
func NewLoggerWithFile(logPath string, level zapcore.Level) (*zap.Logger, error) {
	// Ensure log directory exists
	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	// Open log file
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	// Encoder config
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	// Console encoder (JSON for structured logs)
	consoleEncoder := zapcore.NewJSONEncoder(encoderCfg)

	// File encoder (JSON as well)
	fileEncoder := zapcore.NewJSONEncoder(encoderCfg)

	// Create multi-writer core
	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), level),
		zapcore.NewCore(fileEncoder, zapcore.AddSync(file), level),
	)

	return zap.New(core), nil
}

// TradeLogger is a book.Listener that writes every trade and rejection to a
// zap logger. Trades and soft rejections log at debug, hard rejections at warn.
type TradeLogger struct {
	Log *zap.SugaredLogger
}

var _ book.Listener = TradeLogger{}

func (l TradeLogger) OnTrade(venue string, t book.Trade) {
	l.Log.Debugw("trade",
		"venue", venue,
		"trade_id", t.ID,
		"buyer", t.Buyer,
		"seller", t.Seller,
		"price", t.Price.String(),
		"qty", t.Qty.String())
}

func (l TradeLogger) OnReject(venue string, r book.Rejection) {
	if r.Hard {
		l.Log.Warnw("order_rejected", "venue", venue, "op", r.Op, "order_id", r.OrderID, "reason", r.Reason)
		return
	}
	l.Log.Debugw("order_refused", "venue", venue, "op", r.Op, "order_id", r.OrderID, "reason", r.Reason)
}
