package gigs

import (
	"math/big"
	"strconv"

	"gigledger/core/types"
	"gigledger/crypto"
)

const (
	EventTypeGigCreated   = "gigs.created"
	EventTypeGigAccepted  = "gigs.accepted"
	EventTypeGigCompleted = "gigs.completed"
	EventTypePaymentSent  = "gigs.payment_sent"
	EventTypeGigCancelled = "gigs.cancelled"
	EventTypeUserRated    = "gigs.user_rated"
)

// NewCreatedEvent returns the canonical payload for a newly created, escrowed
// gig.
func NewCreatedEvent(g *Gig) *types.Event {
	attrs := gigAttrs(g)
	if g != nil {
		attrs["contractor"] = addressString(g.Contractor)
		attrs["fee"] = bigString(g.Fee)
		attrs["description"] = g.Description
	}
	return &types.Event{Type: EventTypeGigCreated, Attributes: attrs}
}

// NewAcceptedEvent returns the payload emitted when a worker binds to a gig.
func NewAcceptedEvent(g *Gig) *types.Event {
	attrs := gigAttrs(g)
	if g != nil {
		attrs["worker"] = addressString(g.Worker)
	}
	return &types.Event{Type: EventTypeGigAccepted, Attributes: attrs}
}

// NewCompletedEvent returns the payload emitted when the bound worker records
// completion intent.
func NewCompletedEvent(g *Gig) *types.Event {
	return &types.Event{Type: EventTypeGigCompleted, Attributes: gigAttrs(g)}
}

// NewPaymentSentEvent returns the payload emitted after escrow has been
// released to the worker. The amount is the value actually transferred.
func NewPaymentSentEvent(g *Gig, amount *big.Int) *types.Event {
	attrs := gigAttrs(g)
	if g != nil {
		attrs["worker"] = addressString(g.Worker)
	}
	attrs["amount"] = bigString(amount)
	return &types.Event{Type: EventTypePaymentSent, Attributes: attrs}
}

// NewCancelledEvent returns the payload emitted after an open gig was
// cancelled and its escrow refunded to the contractor.
func NewCancelledEvent(g *Gig, refund *big.Int) *types.Event {
	attrs := gigAttrs(g)
	if g != nil {
		attrs["contractor"] = addressString(g.Contractor)
	}
	attrs["refund"] = bigString(refund)
	return &types.Event{Type: EventTypeGigCancelled, Attributes: attrs}
}

// NewUserRatedEvent returns the payload emitted when the contractor rates the
// worker, carrying the recomputed floor-averaged score.
func NewUserRatedEvent(g *Gig, rating uint8, newScore uint64) *types.Event {
	attrs := gigAttrs(g)
	if g != nil {
		attrs["rater"] = addressString(g.Contractor)
		attrs["rated"] = addressString(g.Worker)
	}
	attrs["rating"] = strconv.FormatUint(uint64(rating), 10)
	attrs["newScore"] = strconv.FormatUint(newScore, 10)
	return &types.Event{Type: EventTypeUserRated, Attributes: attrs}
}

func gigAttrs(g *Gig) map[string]string {
	attrs := make(map[string]string)
	if g != nil {
		attrs["id"] = strconv.FormatUint(g.ID, 10)
	}
	return attrs
}

// addressString renders addresses the same way the RPC surface does, so the
// indexer needs a single address codec.
func addressString(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.GigPrefix, addr[:]).String()
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
