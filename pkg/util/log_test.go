package util

import (
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/uhyunpark/multivenue/pkg/book"
)

func TestTradeLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := TradeLogger{Log: zap.New(core).Sugar()}

	ob := book.NewOrderBook("A")
	ob.Subscribe(l)
	if _, err := ob.SubmitLimitOrder(book.Sell, decimal.NewFromInt(101), decimal.NewFromInt(2)); err != nil {
		t.Fatal(err)
	}
	if _, err := ob.SubmitLimitOrder(book.Buy, decimal.NewFromInt(101), decimal.NewFromInt(1)); err != nil {
		t.Fatal(err)
	}
	ob.CancelOrder("o99")
	_, _ = ob.SubmitLimitOrder(book.Buy, decimal.Zero, decimal.NewFromInt(1))

	trades := logs.FilterMessage("trade").All()
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade log, got %d", len(trades))
	}
	fields := trades[0].ContextMap()
	if fields["venue"] != "A" || fields["price"] != "101" || fields["seller"] != "o1" {
		t.Errorf("unexpected trade fields %v", fields)
	}

	if n := logs.FilterMessage("order_refused").Len(); n != 1 {
		t.Errorf("expected 1 soft refusal, got %d", n)
	}
	warns := logs.FilterMessage("order_rejected").All()
	if len(warns) != 1 || warns[0].Level != zapcore.WarnLevel {
		t.Errorf("expected one warn-level hard rejection, got %+v", warns)
	}
}

func TestFixedClock(t *testing.T) {
	c := FixedClock{}
	if !c.Now().IsZero() {
		t.Fatalf("zero FixedClock should return the zero time")
	}
}
