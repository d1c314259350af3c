package book

// Operation names carried by Rejection events.
const (
	OpSubmitLimit  = "submit_limit"
	OpSubmitMarket = "submit_market"
	OpCancel       = "cancel"
	OpModify       = "modify"
	OpLevels       = "levels"
	OpSweep        = "sweep"
)

// Reasons for soft rejections.
const (
	ReasonNotFound       = "order not found"
	ReasonIncrease       = "quantity increase not allowed"
	ReasonNonPositiveQty = "non-positive target quantity"
)

// Rejection describes an operation the book refused, either a hard validation
// failure or a routine soft outcome (cancel miss, modify refused).
type Rejection struct {
	Op      string `json:"op"`
	OrderID string `json:"orderId,omitempty"`
	Reason  string `json:"reason"`
	Hard    bool   `json:"hard"`
}

// Listener receives book events synchronously, in the order they happen.
// Implementations must not call back into the book.
type Listener interface {
	OnTrade(book string, t Trade)
	OnReject(book string, r Rejection)
}

// Listeners fans every event out to each listener in turn.
type Listeners []Listener

func (ls Listeners) OnTrade(book string, t Trade) {
	for _, l := range ls {
		l.OnTrade(book, t)
	}
}

func (ls Listeners) OnReject(book string, r Rejection) {
	for _, l := range ls {
		l.OnReject(book, r)
	}
}

// ListenerFuncs adapts plain functions to Listener. Nil funcs are skipped.
type ListenerFuncs struct {
	Trade  func(book string, t Trade)
	Reject func(book string, r Rejection)
}

func (f ListenerFuncs) OnTrade(book string, t Trade) {
	if f.Trade != nil {
		f.Trade(book, t)
	}
}

func (f ListenerFuncs) OnReject(book string, r Rejection) {
	if f.Reject != nil {
		f.Reject(book, r)
	}
}
