package book

import "errors"

// Hard validation failures. Routine outcomes (cancel miss, rejected modify,
// partial fills) are reported through return values instead.
var (
	ErrInvalidSide     = errors.New("invalid side")
	ErrInvalidPrice    = errors.New("invalid price")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidDepth    = errors.New("invalid depth")
)
