package registry

import (
	"errors"
	"fmt"

	"gigledger/core/events"
	"gigledger/core/types"
)

var (
	errNilState = errors.New("registry engine: state not configured")

	// ErrAlreadyRegistered marks a second registration attempt for an
	// address whose role latch is already set.
	ErrAlreadyRegistered = errors.New("registry: address already registered")
	// ErrInvalidRole marks registration attempts for a role outside
	// {contractor, worker}.
	ErrInvalidRole = errors.New("registry: invalid role")
	// ErrNotRegistered marks review submissions targeting an address with
	// no worker role binding.
	ErrNotRegistered = errors.New("registry: address not registered")
	// ErrInvalidRating marks ratings outside the [1,5] range.
	ErrInvalidRating = errors.New("registry: rating out of range")
)

// storage abstracts the subset of state manager functionality required by the
// participant table.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var participantPrefix = []byte("registry/participant/")

func participantKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", participantPrefix, addr))
}

type registryEvent struct {
	evt *types.Event
}

func (e registryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e registryEvent) Event() *types.Event { return e.evt }

// Engine owns the participant table: permanent role bindings plus the
// accumulated reputation counters the gig ledger's rating path feeds.
type Engine struct {
	state   storage
	emitter events.Emitter
}

// NewEngine constructs an engine backed by the provided storage with a no-op
// emitter. Callers can override the emitter via SetEmitter.
func NewEngine(state storage) *Engine {
	return &Engine{state: state, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(registryEvent{evt: event})
}

func (e *Engine) load(addr [20]byte) (*Participant, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	var stored Participant
	ok, err := e.state.KVGet(participantKey(addr), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &stored, true, nil
}

func (e *Engine) store(p *Participant) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if p == nil {
		return fmt.Errorf("registry: nil participant")
	}
	return e.state.KVPut(participantKey(p.Address), p)
}

// Register binds the caller to the requested role. The binding is permanent:
// an address with any existing role is rejected, and only contractor or
// worker may be requested.
func (e *Engine) Register(caller [20]byte, role Role) (*Participant, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	existing, ok, err := e.load(caller)
	if err != nil {
		return nil, err
	}
	if ok && existing.Role != RoleNone {
		return nil, ErrAlreadyRegistered
	}
	participant := &Participant{Address: caller, Role: role}
	if err := e.store(participant); err != nil {
		return nil, err
	}
	e.emit(NewRegisteredEvent(participant))
	return participant.Clone(), nil
}

// RoleOf returns the role bound to addr, RoleNone for unknown addresses.
func (e *Engine) RoleOf(addr [20]byte) (Role, error) {
	participant, ok, err := e.load(addr)
	if err != nil {
		return RoleNone, err
	}
	if !ok {
		return RoleNone, nil
	}
	return participant.Role, nil
}

// Get returns the stored participant record, ok=false when unknown.
func (e *Engine) Get(addr [20]byte) (*Participant, bool, error) {
	participant, ok, err := e.load(addr)
	if err != nil || !ok {
		return nil, ok, err
	}
	return participant.Clone(), true, nil
}

// ReputationOf returns the floor-averaged score for addr. Unknown and
// unreviewed addresses both score 0.
func (e *Engine) ReputationOf(addr [20]byte) (uint64, error) {
	participant, ok, err := e.load(addr)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return participant.Score(), nil
}

// AddReview accumulates a single rating onto the target's counters and
// returns the recomputed floor-averaged score. The target must hold the
// worker role; the gig ledger enforces every other rating precondition before
// calling in here.
func (e *Engine) AddReview(target [20]byte, rating uint8) (uint64, error) {
	if rating < 1 || rating > 5 {
		return 0, ErrInvalidRating
	}
	participant, ok, err := e.load(target)
	if err != nil {
		return 0, err
	}
	if !ok || participant.Role != RoleWorker {
		return 0, ErrNotRegistered
	}
	participant.TotalRatingSum += uint64(rating)
	participant.ReviewCount++
	if err := e.store(participant); err != nil {
		return 0, err
	}
	return participant.Score(), nil
}
