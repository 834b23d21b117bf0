package registry

import (
	"gigledger/core/types"
	"gigledger/crypto"
)

// EventTypeRegistered is emitted once per participant when a role is bound.
const EventTypeRegistered = "registry.registered"

// NewRegisteredEvent returns the canonical notification payload for a fresh
// role binding. Addresses are rendered bech32, matching the RPC surface.
func NewRegisteredEvent(p *Participant) *types.Event {
	attrs := make(map[string]string)
	if p != nil {
		attrs["address"] = crypto.MustNewAddress(crypto.GigPrefix, p.Address[:]).String()
		attrs["role"] = p.Role.String()
	}
	return &types.Event{Type: EventTypeRegistered, Attributes: attrs}
}
