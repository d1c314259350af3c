package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uhyunpark/multivenue/pkg/book"
)

// TapeRecord is one archived trade.
type TapeRecord struct {
	Venue      string     `json:"venue"`
	Session    int64      `json:"session"`
	Trade      book.Trade `json:"trade"`
	RecordedAt time.Time  `json:"recordedAt"`
}

func encodeRecord(r TapeRecord) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trade: %w", err)
	}
	return b, nil
}

func decodeRecord(b []byte) (TapeRecord, error) {
	var r TapeRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return TapeRecord{}, fmt.Errorf("failed to unmarshal trade: %w", err)
	}
	return r, nil
}
