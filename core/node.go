package core

import (
	"math/big"
	"sync"

	"gigledger/core/events"
	"gigledger/core/state"
	"gigledger/core/types"
	"gigledger/native/gigs"
	"gigledger/native/registry"
	"gigledger/observability"
	"gigledger/storage"
)

// vaultSettler is the production disbursement path: it pays recipients out of
// the module escrow vault inside the ledger's own account table. It performs
// no callback into the engines, so the reentrancy latch never trips outside
// of adversarial settler implementations.
type vaultSettler struct {
	state *state.Manager
	vault [20]byte
}

func (s vaultSettler) Disburse(to [20]byte, amount *big.Int) error {
	return s.state.Transfer(s.vault, to, amount)
}

// Node hosts the marketplace ledger: the participant registry, the gig
// engine, the persisted state behind both, and the ordered notification log
// consumed by off-process indexers. Every mutating operation is serialized
// under one mutex, the single-writer discipline the engines assume.
type Node struct {
	mu sync.Mutex

	db       storage.Database
	state    *state.Manager
	registry *registry.Engine
	gigs     *gigs.Engine
	events   *events.Log
	metrics  *observability.LedgerMetrics
}

// NewNode wires a node over the provided database. The same database can be
// reopened later; participants, gigs and the id counter are all durable.
func NewNode(db storage.Database) *Node {
	manager := state.NewManager(db)
	log := events.NewLog()

	reg := registry.NewEngine(manager)
	reg.SetEmitter(log)

	engine := gigs.NewEngine()
	engine.SetState(manager)
	engine.SetRoster(reg)
	engine.SetVault(state.EscrowVault())
	engine.SetSettler(vaultSettler{state: manager, vault: state.EscrowVault()})
	engine.SetEmitter(log)

	return &Node{
		db:       db,
		state:    manager,
		registry: reg,
		gigs:     engine,
		events:   log,
		metrics:  observability.Ledger(),
	}
}

func (n *Node) record(op string, err error) {
	if n.metrics != nil {
		n.metrics.RecordOperation(op, err)
	}
}

// Register binds the caller to a role, permanently.
func (n *Node) Register(caller [20]byte, role registry.Role) (*registry.Participant, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	participant, err := n.registry.Register(caller, role)
	n.record("register", err)
	return participant, err
}

// RoleOf reports the role bound to addr (RoleNone when unknown).
func (n *Node) RoleOf(addr [20]byte) (registry.Role, error) {
	return n.registry.RoleOf(addr)
}

// Reputation returns the floor-averaged score for addr.
func (n *Node) Reputation(addr [20]byte) (uint64, error) {
	return n.registry.ReputationOf(addr)
}

// Participant returns the stored registry record for addr.
func (n *Node) Participant(addr [20]byte) (*registry.Participant, bool, error) {
	return n.registry.Get(addr)
}

// CreateGig escrows the attached value and opens a gig owned by the caller.
func (n *Node) CreateGig(caller [20]byte, description string, fee, attached *big.Int) (*gigs.Gig, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	gig, err := n.gigs.Create(caller, description, fee, attached)
	n.record("create", err)
	return gig, err
}

// AcceptGig binds the caller as worker on an open gig.
func (n *Node) AcceptGig(id uint64, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	err := n.gigs.Accept(id, caller)
	n.record("accept", err)
	return err
}

// CompleteGig records the bound worker's completion intent.
func (n *Node) CompleteGig(id uint64, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	err := n.gigs.Complete(id, caller)
	n.record("complete", err)
	return err
}

// ConfirmGigAndPay releases the escrow to the worker and returns the amount
// transferred.
func (n *Node) ConfirmGigAndPay(id uint64, caller [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	amount, err := n.gigs.ConfirmAndPay(id, caller)
	n.record("confirm_and_pay", err)
	if err == nil && n.metrics != nil {
		n.metrics.RecordSettlement("payout", amount)
	}
	return amount, err
}

// CancelGig withdraws an open gig, refunding the contractor. Returns the
// refunded amount.
func (n *Node) CancelGig(id uint64, caller [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	refund, err := n.gigs.Cancel(id, caller)
	n.record("cancel", err)
	if err == nil && n.metrics != nil {
		n.metrics.RecordSettlement("refund", refund)
	}
	return refund, err
}

// RateUser records the contractor's single-shot rating of the worker on a
// paid gig and returns the worker's recomputed score.
func (n *Node) RateUser(id uint64, caller, target [20]byte, rating uint8) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	score, err := n.gigs.Rate(id, caller, target, rating)
	n.record("rate", err)
	return score, err
}

// GetGig returns the full gig projection.
func (n *Node) GetGig(id uint64) (*gigs.Gig, error) {
	return n.gigs.Get(id)
}

// GigStatus returns the gig's lifecycle status.
func (n *Node) GigStatus(id uint64) (gigs.GigStatus, error) {
	return n.gigs.StatusOf(id)
}

// GetAccount loads the native-currency account for addr.
func (n *Node) GetAccount(addr [20]byte) (*types.Account, error) {
	return n.state.GetAccount(addr[:])
}

// Mint credits value to an account. Exposed for genesis funding and local
// development faucets; ledger operations themselves conserve value.
func (n *Node) Mint(addr [20]byte, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Mint(addr, amount)
}

// EventsAfter returns every committed notification with a sequence number
// greater than seq, in commit order.
func (n *Node) EventsAfter(seq uint64) []events.Entry {
	return n.events.After(seq)
}
