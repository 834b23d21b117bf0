package core

import (
	"math/big"
	"testing"

	"gigledger/native/gigs"
	"gigledger/native/registry"
	"gigledger/storage"
)

func nodeAddr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

func TestNodeLifecycle(t *testing.T) {
	node := NewNode(storage.NewMemDB())
	contractor := nodeAddr(0x01)
	worker := nodeAddr(0x02)

	if err := node.Mint(contractor, big.NewInt(200)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := node.Register(contractor, registry.RoleContractor); err != nil {
		t.Fatalf("register contractor: %v", err)
	}
	if _, err := node.Register(worker, registry.RoleWorker); err != nil {
		t.Fatalf("register worker: %v", err)
	}

	gig, err := node.CreateGig(contractor, "assemble furniture", big.NewInt(200), big.NewInt(200))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := node.AcceptGig(gig.ID, worker); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := node.CompleteGig(gig.ID, worker); err != nil {
		t.Fatalf("complete: %v", err)
	}
	amount, err := node.ConfirmGigAndPay(gig.ID, contractor)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if amount.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("paid: want 200, got %s", amount)
	}

	account, err := node.GetAccount(worker)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Balance.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("worker balance: want 200, got %s", account.Balance)
	}

	score, err := node.RateUser(gig.ID, contractor, worker, 4)
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if score != 4 {
		t.Fatalf("score: want 4, got %d", score)
	}

	status, err := node.GigStatus(gig.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != gigs.GigPaid {
		t.Fatalf("status: want paid, got %s", status)
	}
	if entries := node.EventsAfter(0); len(entries) != 7 {
		t.Fatalf("event count: want 7, got %d", len(entries))
	}
}

func TestNodeStateSurvivesReopen(t *testing.T) {
	db := storage.NewMemDB()
	node := NewNode(db)
	contractor := nodeAddr(0x03)

	if err := node.Mint(contractor, big.NewInt(50)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := node.Register(contractor, registry.RoleContractor); err != nil {
		t.Fatalf("register: %v", err)
	}
	gig, err := node.CreateGig(contractor, "durable work", big.NewInt(50), big.NewInt(50))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	reopened := NewNode(db)
	role, err := reopened.RoleOf(contractor)
	if err != nil {
		t.Fatalf("role of: %v", err)
	}
	if role != registry.RoleContractor {
		t.Fatalf("role after reopen: want contractor, got %s", role)
	}
	stored, err := reopened.GetGig(gig.ID)
	if err != nil {
		t.Fatalf("get gig after reopen: %v", err)
	}
	if stored.Description != "durable work" {
		t.Fatalf("gig after reopen: %+v", stored)
	}

	// Identifier allocation continues where it left off.
	second, err := reopened.CancelGig(gig.ID, contractor)
	if err != nil {
		t.Fatalf("cancel after reopen: %v", err)
	}
	if second.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("refund after reopen: want 50, got %s", second)
	}
	next, err := reopened.CreateGig(contractor, "next job", big.NewInt(50), big.NewInt(50))
	if err != nil {
		t.Fatalf("create after reopen: %v", err)
	}
	if next.ID != gig.ID+1 {
		t.Fatalf("id after reopen: want %d, got %d", gig.ID+1, next.ID)
	}
}
