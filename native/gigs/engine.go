package gigs

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"gigledger/core/events"
	"gigledger/core/types"
	"gigledger/native/registry"
)

var (
	errNilState   = errors.New("gigs engine: state not configured")
	errNilRoster  = errors.New("gigs engine: registry not configured")
	errNilSettler = errors.New("gigs engine: settler not configured")
)

// ledgerState is the subset of state manager functionality the gig engine
// persists through: the RLP key-value space for gig records and the account
// balances backing escrow deposits.
type ledgerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// roster is the registry surface the engine needs: role checks at the top of
// every mutating operation plus the reputation accumulator behind Rate.
type roster interface {
	RoleOf(addr [20]byte) (registry.Role, error)
	AddReview(target [20]byte, rating uint8) (uint64, error)
}

// Settler moves escrowed value out of the module vault to a recipient. It is
// the only external interaction embedded in a ledger operation, which makes
// it the sole reentrancy hazard; implementations may fail, and the engine
// rolls its own state back when they do.
type Settler interface {
	Disburse(to [20]byte, amount *big.Int) error
}

var (
	gigPrefix    = []byte("gigs/gig/")
	escrowPrefix = []byte("gigs/escrow/")
	nextIDKey    = []byte("gigs/next-id")
)

func gigKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", gigPrefix, id))
}

func escrowKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", escrowPrefix, id))
}

type gigEvent struct {
	evt *types.Event
}

func (e gigEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e gigEvent) Event() *types.Event { return e.evt }

// Engine owns every gig record and the escrowed value bound to it. All
// mutating operations run under the host's single-writer discipline; on top
// of that the engine keeps a non-reentrant settlement latch so a malicious
// disbursement recipient calling back in mid-transfer is rejected instead of
// observing (or corrupting) half-settled state.
type Engine struct {
	state   ledgerState
	roster  roster
	settler Settler
	emitter events.Emitter
	vault   [20]byte
	nowFn   func() int64

	// settling is the reentrancy latch. It is flipped without atomics on
	// purpose: mutations are serialized by the node, so the only path
	// that can observe it set is a same-goroutine callback from the
	// settler.
	settling bool
}

// NewEngine creates a gig engine with a no-op emitter. State, roster, settler
// and vault must be configured before use.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state ledgerState) { e.state = state }

// SetRoster configures the registry the engine validates caller roles against.
func (e *Engine) SetRoster(r roster) { e.roster = r }

// SetSettler configures the disbursement path used on payout and refund.
func (e *Engine) SetSettler(s Settler) { e.settler = s }

// SetVault configures the module address escrow deposits are parked at.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for creation timestamps.
// Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(gigEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (e *Engine) loadGig(id uint64) (*Gig, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if id == 0 {
		return nil, ErrGigNotFound
	}
	var stored storedGig
	ok, err := e.state.KVGet(gigKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrGigNotFound
	}
	return stored.toGig(), nil
}

func (e *Engine) storeGig(g *Gig) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if g == nil {
		return fmt.Errorf("gigs: nil gig")
	}
	if !g.Status.Valid() {
		return fmt.Errorf("gigs: invalid status %d", g.Status)
	}
	return e.state.KVPut(gigKey(g.ID), g.toStored())
}

func (e *Engine) nextID() (uint64, error) {
	var next uint64
	ok, err := e.state.KVGet(nextIDKey, &next)
	if err != nil {
		return 0, err
	}
	if !ok || next == 0 {
		next = 1
	}
	if err := e.state.KVPut(nextIDKey, next+1); err != nil {
		return 0, err
	}
	return next, nil
}

// escrowBalance reads the value currently parked for a gig.
func (e *Engine) escrowBalance(id uint64) (*big.Int, error) {
	balance := big.NewInt(0)
	ok, err := e.state.KVGet(escrowKey(id), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func (e *Engine) setEscrowBalance(id uint64, amount *big.Int) error {
	return e.state.KVPut(escrowKey(id), cloneBigInt(amount))
}

// depositToVault moves the attached value from the contractor's account into
// the module vault. Internal bookkeeping only; no external code runs.
func (e *Engine) depositToVault(from [20]byte, amount *big.Int) error {
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	if fromAcc.Balance == nil || fromAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	vaultAcc, err := e.state.GetAccount(e.vault[:])
	if err != nil {
		return err
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	vaultAcc.Balance = new(big.Int).Add(cloneBigInt(vaultAcc.Balance), amount)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(e.vault[:], vaultAcc)
}

func (e *Engine) guard() error {
	if e.settling {
		return ErrReentrantCall
	}
	return nil
}

func (e *Engine) requireRole(caller [20]byte, role registry.Role) error {
	if e.roster == nil {
		return errNilRoster
	}
	got, err := e.roster.RoleOf(caller)
	if err != nil {
		return err
	}
	if got != role {
		return ErrUnauthorized
	}
	return nil
}

// Create escrows the attached value and opens a new gig. The caller must be a
// registered contractor, the fee strictly positive, and the attached value
// exactly equal to the fee.
func (e *Engine) Create(caller [20]byte, description string, fee, attached *big.Int) (*Gig, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.requireRole(caller, registry.RoleContractor); err != nil {
		return nil, err
	}
	if fee == nil || fee.Sign() <= 0 {
		return nil, ErrInvalidFee
	}
	if attached == nil || attached.Cmp(fee) != 0 {
		return nil, ErrEscrowMismatch
	}
	amount := cloneBigInt(fee)
	if err := e.depositToVault(caller, amount); err != nil {
		return nil, err
	}
	id, err := e.nextID()
	if err != nil {
		return nil, err
	}
	if err := e.setEscrowBalance(id, amount); err != nil {
		return nil, err
	}
	gig := &Gig{
		ID:          id,
		Contractor:  caller,
		Description: description,
		Fee:         amount,
		Status:      GigOpen,
		CreatedAt:   e.now(),
	}
	if err := e.storeGig(gig); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(gig))
	return gig.Clone(), nil
}

// Accept binds the caller as the gig's worker. Only registered workers may
// accept, only open gigs are acceptable, and a contractor can never accept
// their own gig.
func (e *Engine) Accept(id uint64, caller [20]byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	gig, err := e.loadGig(id)
	if err != nil {
		return err
	}
	if gig.Status != GigOpen {
		return ErrInvalidState
	}
	if caller == gig.Contractor {
		return ErrSelfDealing
	}
	if err := e.requireRole(caller, registry.RoleWorker); err != nil {
		return err
	}
	gig.Worker = caller
	gig.Status = GigAccepted
	if err := e.storeGig(gig); err != nil {
		return err
	}
	e.emit(NewAcceptedEvent(gig))
	return nil
}

// Complete records the bound worker's completion intent. No funds move.
func (e *Engine) Complete(id uint64, caller [20]byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	gig, err := e.loadGig(id)
	if err != nil {
		return err
	}
	if gig.Status != GigAccepted {
		return ErrInvalidState
	}
	if caller != gig.Worker {
		return ErrUnauthorized
	}
	gig.Status = GigCompletedByWorker
	if err := e.storeGig(gig); err != nil {
		return err
	}
	e.emit(NewCompletedEvent(gig))
	return nil
}

// ConfirmAndPay releases the escrow to the worker. The stored fee is zeroed
// and the status committed to Paid before the settler runs, so even a
// successful reentrant read sees a gig that is no longer payable; a failed
// disbursement restores status and fee exactly and surfaces ErrTransferFailed.
// Returns the amount transferred.
func (e *Engine) ConfirmAndPay(id uint64, caller [20]byte) (*big.Int, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if e.settler == nil {
		return nil, errNilSettler
	}
	e.settling = true
	defer func() { e.settling = false }()

	gig, err := e.loadGig(id)
	if err != nil {
		return nil, err
	}
	if gig.Status != GigCompletedByWorker {
		return nil, ErrInvalidState
	}
	if caller != gig.Contractor {
		return nil, ErrUnauthorized
	}
	amount := cloneBigInt(gig.Fee)
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("gigs: escrow already drained for gig %d", id)
	}

	// Effects before interaction: the gig is unpayable from here on.
	prevStatus, prevFee := gig.Status, cloneBigInt(gig.Fee)
	gig.Status = GigPaid
	gig.Fee = big.NewInt(0)
	if err := e.storeGig(gig); err != nil {
		return nil, err
	}
	if err := e.setEscrowBalance(id, big.NewInt(0)); err != nil {
		return nil, err
	}

	if err := e.settler.Disburse(gig.Worker, amount); err != nil {
		gig.Status = prevStatus
		gig.Fee = prevFee
		if restoreErr := e.storeGig(gig); restoreErr != nil {
			return nil, fmt.Errorf("gigs: rollback failed after transfer error: %v (transfer: %w)", restoreErr, err)
		}
		if restoreErr := e.setEscrowBalance(id, prevFee); restoreErr != nil {
			return nil, fmt.Errorf("gigs: rollback failed after transfer error: %v (transfer: %w)", restoreErr, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	e.emit(NewPaymentSentEvent(gig, amount))
	return amount, nil
}

// Cancel withdraws an open gig and refunds the escrow to the contractor.
// Same mutate-then-transfer discipline as ConfirmAndPay: the gig is committed
// Cancelled with a zeroed fee before the refund runs, and rolled back exactly
// if the refund fails.
func (e *Engine) Cancel(id uint64, caller [20]byte) (*big.Int, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if e.settler == nil {
		return nil, errNilSettler
	}
	e.settling = true
	defer func() { e.settling = false }()

	gig, err := e.loadGig(id)
	if err != nil {
		return nil, err
	}
	if gig.Status != GigOpen {
		return nil, ErrInvalidState
	}
	if caller != gig.Contractor {
		return nil, ErrUnauthorized
	}
	refund := cloneBigInt(gig.Fee)
	if refund.Sign() <= 0 {
		return nil, fmt.Errorf("gigs: escrow already drained for gig %d", id)
	}

	prevStatus, prevFee := gig.Status, cloneBigInt(gig.Fee)
	gig.Status = GigCancelled
	gig.Fee = big.NewInt(0)
	if err := e.storeGig(gig); err != nil {
		return nil, err
	}
	if err := e.setEscrowBalance(id, big.NewInt(0)); err != nil {
		return nil, err
	}

	if err := e.settler.Disburse(gig.Contractor, refund); err != nil {
		gig.Status = prevStatus
		gig.Fee = prevFee
		if restoreErr := e.storeGig(gig); restoreErr != nil {
			return nil, fmt.Errorf("gigs: rollback failed after transfer error: %v (transfer: %w)", restoreErr, err)
		}
		if restoreErr := e.setEscrowBalance(id, prevFee); restoreErr != nil {
			return nil, fmt.Errorf("gigs: rollback failed after transfer error: %v (transfer: %w)", restoreErr, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	e.emit(NewCancelledEvent(gig, refund))
	return refund, nil
}

// Rate records the contractor's one-sided rating of the worker on a paid gig.
// The per-gig latch makes the rating single-shot; the recomputed
// floor-averaged score is returned and carried on the emitted event.
func (e *Engine) Rate(id uint64, caller, target [20]byte, rating uint8) (uint64, error) {
	if err := e.guard(); err != nil {
		return 0, err
	}
	if e.roster == nil {
		return 0, errNilRoster
	}
	gig, err := e.loadGig(id)
	if err != nil {
		return 0, err
	}
	if caller != gig.Contractor && caller != gig.Worker {
		return 0, ErrUnauthorized
	}
	if gig.Status != GigPaid {
		return 0, ErrInvalidState
	}
	if rating < 1 || rating > 5 {
		return 0, ErrInvalidRating
	}
	if caller != gig.Contractor || target != gig.Worker {
		return 0, ErrUnauthorized
	}
	if gig.ContractorRatedWorker {
		return 0, ErrAlreadyRated
	}
	newScore, err := e.roster.AddReview(target, rating)
	if err != nil {
		return 0, err
	}
	gig.ContractorRatedWorker = true
	if err := e.storeGig(gig); err != nil {
		return 0, err
	}
	e.emit(NewUserRatedEvent(gig, rating, newScore))
	return newScore, nil
}

// Get returns a copy of the stored gig record.
func (e *Engine) Get(id uint64) (*Gig, error) {
	gig, err := e.loadGig(id)
	if err != nil {
		return nil, err
	}
	return gig.Clone(), nil
}

// StatusOf returns the gig's current lifecycle status.
func (e *Engine) StatusOf(id uint64) (GigStatus, error) {
	gig, err := e.loadGig(id)
	if err != nil {
		return 0, err
	}
	return gig.Status, nil
}

// EscrowHeld reports the value currently parked in the vault for the gig.
// Zero for terminal gigs.
func (e *Engine) EscrowHeld(id uint64) (*big.Int, error) {
	if _, err := e.loadGig(id); err != nil {
		return nil, err
	}
	return e.escrowBalance(id)
}
