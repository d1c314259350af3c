package storage

import (
	"fmt"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/uhyunpark/multivenue/pkg/book"
	"github.com/uhyunpark/multivenue/pkg/util"
)

// TradeTape archives every trade it hears about to Pebble. It is an
// embedding-side consumer of book events: nothing is ever read back into a
// book, a restart always starts from empty books.
type TradeTape struct {
	db      *pebble.DB
	clock   util.Clock
	log     *zap.SugaredLogger
	session int64
}

var _ book.Listener = (*TradeTape)(nil)

// OpenTradeTape opens (or creates) a tape at path. opts may be nil.
func OpenTradeTape(path string, opts *pebble.Options, clock util.Clock, log *zap.SugaredLogger) (*TradeTape, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open trade tape: %w", err)
	}
	return &TradeTape{db: db, clock: clock, log: log, session: clock.Now().UnixNano()}, nil
}

func (s *TradeTape) Close() error { return s.db.Close() }

// Session identifies this process lifetime on the tape.
func (s *TradeTape) Session() int64 { return s.session }

// SaveTrade persists a trade to Pebble
func (s *TradeTape) SaveTrade(venue string, t book.Trade) error {
	data, err := encodeRecord(TapeRecord{
		Venue:      venue,
		Session:    s.session,
		Trade:      t,
		RecordedAt: s.clock.Now().UTC(),
	})
	if err != nil {
		return err
	}

	key := tradeKey(venue, s.session, t.ID)
	if err := s.db.Set(key, data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}

	return nil
}

// OnTrade implements book.Listener. Write failures are logged, never
// propagated into the matching path.
func (s *TradeTape) OnTrade(venue string, t book.Trade) {
	if err := s.SaveTrade(venue, t); err != nil {
		s.log.Errorw("tape_write_failed", "venue", venue, "trade_id", t.ID, "err", err)
	}
}

func (s *TradeTape) OnReject(string, book.Rejection) {}

// RecentTrades loads the most recent N trades for a venue, newest first
func (s *TradeTape) RecentTrades(venue string, limit int) ([]TapeRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	prefix := tradePrefix(venue)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var records []TapeRecord
	for iter.Last(); iter.Valid() && len(records) < limit; iter.Prev() {
		r, err := decodeRecord(iter.Value())
		if err != nil {
			s.log.Warnw("tape_record_skipped", "key", string(iter.Key()), "err", err)
			continue // Skip invalid entries
		}
		records = append(records, r)
	}

	return records, nil
}
