package gigs

import (
	"fmt"
	"math/big"
)

// GigStatus tracks a gig along its fixed lifecycle. Paid and Cancelled are
// terminal; every other transition is explicitly whitelisted by the engine.
type GigStatus uint8

const (
	// GigOpen is the initial state: escrow funded, no worker bound.
	GigOpen GigStatus = iota + 1
	// GigAccepted has a worker bound and work in flight.
	GigAccepted
	// GigCompletedByWorker records the worker's completion intent. No
	// funds move in this state.
	GigCompletedByWorker
	// GigPaid is terminal: the contractor confirmed and escrow was
	// released to the worker.
	GigPaid
	// GigCancelled is terminal: the contractor withdrew an open gig and
	// the escrow was refunded.
	GigCancelled
)

// Valid reports whether the status value is within the supported range.
func (s GigStatus) Valid() bool {
	switch s {
	case GigOpen, GigAccepted, GigCompletedByWorker, GigPaid, GigCancelled:
		return true
	default:
		return false
	}
}

func (s GigStatus) String() string {
	switch s {
	case GigOpen:
		return "open"
	case GigAccepted:
		return "accepted"
	case GigCompletedByWorker:
		return "completed_by_worker"
	case GigPaid:
		return "paid"
	case GigCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Terminal reports whether the status admits no further transitions.
func (s GigStatus) Terminal() bool {
	return s == GigPaid || s == GigCancelled
}

// Gig captures one unit of work and the escrow attached to it. Identifiers
// are assigned sequentially starting at 1; 0 never names a gig. Contractor
// and Description are immutable from creation, Worker is immutable once
// bound, and Fee is zeroed exactly once on the terminal transition that moves
// the escrowed value.
type Gig struct {
	ID                    uint64
	Contractor            [20]byte
	Worker                [20]byte
	Description           string
	Fee                   *big.Int
	Status                GigStatus
	ContractorRatedWorker bool
	CreatedAt             int64
}

// HasWorker reports whether a worker has been bound to the gig.
func (g *Gig) HasWorker() bool {
	return g != nil && g.Worker != ([20]byte{})
}

// Clone returns a deep copy of the gig so callers can safely mutate the copy
// without affecting the stored instance.
func (g *Gig) Clone() *Gig {
	if g == nil {
		return nil
	}
	clone := *g
	if g.Fee != nil {
		clone.Fee = new(big.Int).Set(g.Fee)
	} else {
		clone.Fee = big.NewInt(0)
	}
	return &clone
}

// storedGig is the RLP-friendly persistence shape (unsigned timestamp,
// non-nil fee).
type storedGig struct {
	ID                    uint64
	Contractor            [20]byte
	Worker                [20]byte
	Description           string
	Fee                   *big.Int
	Status                uint8
	ContractorRatedWorker bool
	CreatedAt             uint64
}

func (g *Gig) toStored() *storedGig {
	stored := &storedGig{
		ID:                    g.ID,
		Contractor:            g.Contractor,
		Worker:                g.Worker,
		Description:           g.Description,
		Fee:                   big.NewInt(0),
		Status:                uint8(g.Status),
		ContractorRatedWorker: g.ContractorRatedWorker,
	}
	if g.Fee != nil {
		stored.Fee = new(big.Int).Set(g.Fee)
	}
	if g.CreatedAt > 0 {
		stored.CreatedAt = uint64(g.CreatedAt)
	}
	return stored
}

func (s *storedGig) toGig() *Gig {
	gig := &Gig{
		ID:                    s.ID,
		Contractor:            s.Contractor,
		Worker:                s.Worker,
		Description:           s.Description,
		Fee:                   big.NewInt(0),
		Status:                GigStatus(s.Status),
		ContractorRatedWorker: s.ContractorRatedWorker,
		CreatedAt:             int64(s.CreatedAt),
	}
	if s.Fee != nil {
		gig.Fee = new(big.Int).Set(s.Fee)
	}
	return gig
}
