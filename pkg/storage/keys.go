package storage

import "fmt"

// Tape key schema:
//
//	trade:<len(venue)>:<venue>:<session>:<tradeID> → TapeRecord
//
// The venue is length-prefixed so a venue name containing ':' can never
// fall inside another venue's prefix ("trade:1:A:" vs "trade:6:A:east:").
// Session and trade id are zero-padded (20 digits) so a prefix scan walks a
// venue's trades in recording order across restarts. Trade ids restart at 1
// with every fresh book, the session keeps them apart.
const prefixTrade = "trade:"

// tradeKey returns the key for a trade
// Format: "trade:{len}:{venue}:{session}:{tradeID}"
func tradeKey(venue string, session int64, tradeID uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d:%020d", tradePrefix(venue), session, tradeID))
}

// tradePrefix returns the prefix for all trades of a venue
// Format: "trade:{len}:{venue}:"
func tradePrefix(venue string) []byte {
	return []byte(fmt.Sprintf("%s%d:%s:", prefixTrade, len(venue), venue))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
