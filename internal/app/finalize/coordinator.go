// Package finalize owns the exactly-once tally computation for closed polls.
package finalize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openpolls/tabulator/internal/app/tally"
	"github.com/openpolls/tabulator/internal/domain"
	"github.com/openpolls/tabulator/internal/platform/metrics"
)

// Coordinator drives finalization: the poll and its active ballots are
// re-read inside the repository transaction, handed to the counting strategy
// and committed together with the closed->finalized transition. That
// conditional transition is the only arbiter between concurrent attempts;
// the coordinator holds no locks of its own.
type Coordinator struct {
	polls   domain.PollRepository
	results domain.ResultRepository
	clock   domain.Clock
}

var _ domain.FinalizationService = (*Coordinator)(nil)

func NewCoordinator(polls domain.PollRepository, results domain.ResultRepository, clock domain.Clock) *Coordinator {
	return &Coordinator{
		polls:   polls,
		results: results,
		clock:   clock,
	}
}

// Finalize computes and commits the tally for a closed poll. A caller that
// loses the race still gets the committed result, alongside
// domain.ErrAlreadyFinalized so it knows this attempt did not write it.
func (c *Coordinator) Finalize(ctx context.Context, pollID domain.PollID) (domain.TallyResult, error) {
	start := time.Now()

	result, err := c.results.FinalizeOnce(ctx, pollID, c.compute)
	switch {
	case err == nil:
		metrics.ObserveFinalization("finalized")
		metrics.AddBallotsTallied(result.BallotCount)
		metrics.ObserveTallyDuration(time.Since(start).Seconds())
		return result, nil
	case errors.Is(err, domain.ErrAlreadyFinalized):
		metrics.ObserveFinalization("already_finalized")
		committed, findErr := c.results.Find(ctx, pollID)
		if findErr != nil {
			return domain.TallyResult{}, fmt.Errorf("finalize: fetch committed result for %s: %w", pollID, findErr)
		}
		return committed, err
	case errors.Is(err, domain.ErrPollStillOpen):
		metrics.ObserveFinalization("still_open")
		return domain.TallyResult{}, err
	case errors.Is(err, domain.ErrNotFound):
		metrics.ObserveFinalization("not_found")
		return domain.TallyResult{}, err
	default:
		metrics.ObserveFinalization("error")
		return domain.TallyResult{}, fmt.Errorf("finalize: poll %s: %w", pollID, err)
	}
}

// Result returns the committed tally of a finalized poll.
func (c *Coordinator) Result(ctx context.Context, pollID domain.PollID) (domain.TallyResult, error) {
	return c.results.Find(ctx, pollID)
}

// FinalizeDue sweeps every closed poll and reports how many tallies this
// pass committed. Polls that fail are skipped and retried on the next sweep.
func (c *Coordinator) FinalizeDue(ctx context.Context) (int, error) {
	closed, err := c.polls.ListByStatus(ctx, domain.StatusClosed)
	if err != nil {
		return 0, fmt.Errorf("finalize: list closed polls: %w", err)
	}

	var (
		done int
		errs []error
	)
	for _, poll := range closed {
		if _, err := c.Finalize(ctx, poll.ID); err != nil {
			if errors.Is(err, domain.ErrAlreadyFinalized) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}

// compute runs the method's strategy over the transaction's ballot snapshot
// and seals the result with the audit commitments.
func (c *Coordinator) compute(poll domain.Poll, ballots []domain.Ballot) (domain.TallyResult, error) {
	strategy, err := tally.ForMethod(poll.Method)
	if err != nil {
		return domain.TallyResult{}, err
	}
	result, err := strategy.Tally(poll, ballots)
	if err != nil {
		return domain.TallyResult{}, err
	}

	root, err := tally.BallotSetRoot(ballots)
	if err != nil {
		return domain.TallyResult{}, err
	}
	result.BallotRoot = root
	result.ComputedAt = c.clock.Now()

	hash, err := tally.ResultHash(result)
	if err != nil {
		return domain.TallyResult{}, err
	}
	result.ResultHash = hash
	return result, nil
}
