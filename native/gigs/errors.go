package gigs

import "errors"

var (
	// ErrGigNotFound marks lookups for identifiers no gig was ever
	// assigned (including the reserved id 0).
	ErrGigNotFound = errors.New("gigs: gig not found")
	// ErrInvalidState marks an operation that is not legal in the gig's
	// current lifecycle status.
	ErrInvalidState = errors.New("gigs: operation invalid in current state")
	// ErrUnauthorized marks callers whose role or identity does not match
	// the operation's requirement.
	ErrUnauthorized = errors.New("gigs: caller not authorized")
	// ErrSelfDealing marks a contractor attempting to accept their own gig.
	ErrSelfDealing = errors.New("gigs: contractor cannot accept own gig")
	// ErrInvalidFee marks gig creation with a non-positive fee.
	ErrInvalidFee = errors.New("gigs: fee must be positive")
	// ErrEscrowMismatch marks gig creation whose attached value does not
	// exactly equal the fee.
	ErrEscrowMismatch = errors.New("gigs: attached value must equal fee")
	// ErrInvalidRating marks ratings outside [1,5].
	ErrInvalidRating = errors.New("gigs: rating must be between 1 and 5")
	// ErrAlreadyRated marks a second rating attempt on a gig whose latch
	// is already set.
	ErrAlreadyRated = errors.New("gigs: gig already rated")
	// ErrInsufficientFunds marks a contractor whose balance cannot cover
	// the escrow deposit.
	ErrInsufficientFunds = errors.New("gigs: insufficient balance for escrow")
	// ErrReentrantCall marks a mutating call issued while a settlement is
	// in flight on the same engine.
	ErrReentrantCall = errors.New("gigs: reentrant call rejected")
	// ErrTransferFailed marks a settlement the external disbursement path
	// did not complete; state is rolled back to its pre-call values.
	ErrTransferFailed = errors.New("gigs: value transfer failed")
)
