package registry

import (
	"fmt"
	"strings"
)

// Role is the permanent capability a participant registers under. A role is
// bound exactly once: None -> Contractor or None -> Worker, never back.
type Role uint8

const (
	RoleNone Role = iota
	RoleContractor
	RoleWorker
)

// Valid reports whether the role is one of the registerable values.
func (r Role) Valid() bool {
	switch r {
	case RoleContractor, RoleWorker:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	switch r {
	case RoleContractor:
		return "contractor"
	case RoleWorker:
		return "worker"
	case RoleNone:
		return "none"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// ParseRole maps the canonical lowercase role names used on the wire back to
// the typed value.
func ParseRole(value string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "contractor":
		return RoleContractor, nil
	case "worker":
		return RoleWorker, nil
	default:
		return RoleNone, fmt.Errorf("registry: unknown role %q", value)
	}
}

// Participant pairs an account address with its role binding and the
// accumulated one-sided reputation counters. The floor-averaged score is
// derived, never stored.
type Participant struct {
	Address        [20]byte
	Role           Role
	TotalRatingSum uint64
	ReviewCount    uint64
}

// Score returns floor(TotalRatingSum / ReviewCount), 0 when unreviewed.
func (p *Participant) Score() uint64 {
	if p == nil || p.ReviewCount == 0 {
		return 0
	}
	return p.TotalRatingSum / p.ReviewCount
}

// Clone returns a copy callers can mutate safely.
func (p *Participant) Clone() *Participant {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
