package state

import "math/big"

type EventKind string

const (
	EventMinted   EventKind = "minted"
	EventListed   EventKind = "listed"
	EventDelisted EventKind = "delisted"
	EventFilled   EventKind = "filled"
	EventSettled  EventKind = "settled"
)

// Event is what subscribers receive. Receivable is a private copy and is
// nil for EventSettled (the receivable is already removed by then).
type Event struct {
	Kind       EventKind
	Id         *big.Int
	Receivable *Receivable
}
