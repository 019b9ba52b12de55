package domain

import (
	"context"
	"time"
)

type PollRepository interface {
	Create(ctx context.Context, p Poll) error
	FindByID(ctx context.Context, id PollID) (Poll, error)
	ListByStatus(ctx context.Context, status PollStatus) ([]Poll, error)
	// UpdateStatus moves the poll from one status to another and reports
	// whether a row actually changed, so callers can distinguish a lost
	// race from a successful transition.
	UpdateStatus(ctx context.Context, id PollID, from, to PollStatus) (bool, error)
}

type BallotRepository interface {
	// Record persists the ballot, atomically superseding any older active
	// ballot of the same voter in the same poll. A ballot that is already
	// older than the voter's current active one is stored pre-superseded.
	Record(ctx context.Context, ballot Ballot) error
	ListActive(ctx context.Context, pollID PollID) ([]Ballot, error)
	CountActive(ctx context.Context, pollID PollID) (int64, error)
}

// TallyFunc computes the result for a poll from the ballots read inside the
// finalization transaction.
type TallyFunc func(poll Poll, ballots []Ballot) (TallyResult, error)

type ResultRepository interface {
	// FinalizeOnce flips the poll from closed to finalized and persists the
	// result produced by fn, all within one transaction. Exactly one caller
	// per poll ever gets fn executed and committed; the rest receive
	// ErrAlreadyFinalized.
	FinalizeOnce(ctx context.Context, pollID PollID, fn TallyFunc) (TallyResult, error)
	Find(ctx context.Context, pollID PollID) (TallyResult, error)
}

type LiveCounter interface {
	Increment(ctx context.Context, key string, delta int64) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
	GetAll(ctx context.Context, keys []string) (map[string]int64, error)
}

type Clock interface {
	Now() time.Time
}

type TabulationService interface {
	CreatePoll(ctx context.Context, poll Poll, labels []string) (Poll, error)
	Submit(ctx context.Context, pollID PollID, voterID VoterID, payload Payload) (Ballot, error)
	ClosePoll(ctx context.Context, pollID PollID) error
	GetPoll(ctx context.Context, pollID PollID) (Poll, error)
	ListOpen(ctx context.Context) ([]Poll, error)
	LiveTally(ctx context.Context, pollID PollID) (LiveTally, error)
}

type FinalizationService interface {
	Finalize(ctx context.Context, pollID PollID) (TallyResult, error)
	Result(ctx context.Context, pollID PollID) (TallyResult, error)
}
