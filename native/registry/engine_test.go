package registry

import (
	"bytes"
	"errors"
	"testing"

	"gigledger/core/events"
	"gigledger/core/state"
	"gigledger/crypto"
	statedb "gigledger/storage"
)

func newTestEngine() (*Engine, *events.Log) {
	manager := state.NewManager(statedb.NewMemDB())
	log := events.NewLog()
	engine := NewEngine(manager)
	engine.SetEmitter(log)
	return engine, log
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func TestRegisterBindsRolePermanently(t *testing.T) {
	engine, log := newTestEngine()
	addr := testAddr(0x01)

	participant, err := engine.Register(addr, RoleContractor)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if participant.Role != RoleContractor {
		t.Fatalf("role: want contractor, got %s", participant.Role)
	}
	if log.Len() != 1 {
		t.Fatalf("expected one registration event, got %d", log.Len())
	}
	entry := log.After(0)[0]
	wantAddr := crypto.MustNewAddress(crypto.GigPrefix, addr[:]).String()
	if entry.Event.Attributes["address"] != wantAddr {
		t.Fatalf("address attribute: want %s, got %s", wantAddr, entry.Event.Attributes["address"])
	}
	if entry.Event.Attributes["role"] != "contractor" {
		t.Fatalf("role attribute: want contractor, got %s", entry.Event.Attributes["role"])
	}

	// The latch holds for both the same role and a different one.
	if _, err := engine.Register(addr, RoleContractor); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("re-register same role: want ErrAlreadyRegistered, got %v", err)
	}
	if _, err := engine.Register(addr, RoleWorker); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("re-register other role: want ErrAlreadyRegistered, got %v", err)
	}

	role, err := engine.RoleOf(addr)
	if err != nil {
		t.Fatalf("role of: %v", err)
	}
	if role != RoleContractor {
		t.Fatalf("stored role: want contractor, got %s", role)
	}
}

func TestRegisterRejectsInvalidRole(t *testing.T) {
	engine, _ := newTestEngine()
	if _, err := engine.Register(testAddr(0x02), RoleNone); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("register none: want ErrInvalidRole, got %v", err)
	}
	if _, err := engine.Register(testAddr(0x02), Role(9)); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("register out of range: want ErrInvalidRole, got %v", err)
	}
}

func TestRoleOfUnknownAddressIsNone(t *testing.T) {
	engine, _ := newTestEngine()
	role, err := engine.RoleOf(testAddr(0x03))
	if err != nil {
		t.Fatalf("role of: %v", err)
	}
	if role != RoleNone {
		t.Fatalf("unknown address role: want none, got %s", role)
	}
	if _, ok, err := engine.Get(testAddr(0x03)); err != nil || ok {
		t.Fatalf("get unknown: want ok=false err=nil, got ok=%v err=%v", ok, err)
	}
}

func TestAddReviewAccumulatesAndFloors(t *testing.T) {
	engine, _ := newTestEngine()
	worker := testAddr(0x04)
	if _, err := engine.Register(worker, RoleWorker); err != nil {
		t.Fatalf("register: %v", err)
	}

	cases := []struct {
		rating uint8
		want   uint64
	}{
		{5, 5}, // 5/1
		{3, 4}, // 8/2
		{4, 4}, // 12/3
		{1, 3}, // 13/4
	}
	for _, tc := range cases {
		got, err := engine.AddReview(worker, tc.rating)
		if err != nil {
			t.Fatalf("add review %d: %v", tc.rating, err)
		}
		if got != tc.want {
			t.Fatalf("score after rating %d: want %d, got %d", tc.rating, tc.want, got)
		}
	}

	score, err := engine.ReputationOf(worker)
	if err != nil {
		t.Fatalf("reputation: %v", err)
	}
	if score != 3 {
		t.Fatalf("final score: want 3, got %d", score)
	}
}

func TestAddReviewGuards(t *testing.T) {
	engine, _ := newTestEngine()
	worker := testAddr(0x05)
	contractor := testAddr(0x06)
	if _, err := engine.Register(worker, RoleWorker); err != nil {
		t.Fatalf("register worker: %v", err)
	}
	if _, err := engine.Register(contractor, RoleContractor); err != nil {
		t.Fatalf("register contractor: %v", err)
	}

	if _, err := engine.AddReview(worker, 0); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("rating 0: want ErrInvalidRating, got %v", err)
	}
	if _, err := engine.AddReview(worker, 6); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("rating 6: want ErrInvalidRating, got %v", err)
	}
	if _, err := engine.AddReview(testAddr(0x07), 5); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("unknown target: want ErrNotRegistered, got %v", err)
	}
	// Contractors accumulate no reputation.
	if _, err := engine.AddReview(contractor, 5); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("contractor target: want ErrNotRegistered, got %v", err)
	}
}

func TestReputationOfUnreviewedIsZero(t *testing.T) {
	engine, _ := newTestEngine()
	worker := testAddr(0x08)
	if _, err := engine.Register(worker, RoleWorker); err != nil {
		t.Fatalf("register: %v", err)
	}
	score, err := engine.ReputationOf(worker)
	if err != nil {
		t.Fatalf("reputation: %v", err)
	}
	if score != 0 {
		t.Fatalf("unreviewed score: want 0, got %d", score)
	}
}

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"contractor": RoleContractor,
		"Worker":     RoleWorker,
		"  WORKER ":  RoleWorker,
	}
	for input, want := range cases {
		got, err := ParseRole(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("parse %q: want %s, got %s", input, want, got)
		}
	}
	if _, err := ParseRole("admin"); err == nil {
		t.Fatal("parse admin: expected error")
	}
}
