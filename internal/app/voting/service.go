// Package voting implements the submission side of the tabulator: poll
// creation, ballot validation and idempotent recording, plus the advisory
// live counters.
package voting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openpolls/tabulator/internal/domain"
	"github.com/openpolls/tabulator/internal/platform/ids"
)

var (
	ErrInvalidPoll  = errors.New("invalid poll")
	ErrPollClosed   = errors.New("poll closed")
	ErrPollNotFound = errors.New("poll not found")
)

const (
	defaultMaxScore     = 10
	defaultCreditBudget = 100
	maxCreditBudget     = 1_000_000
)

// Service concentrates the submission rules and delegates persistence to the
// repositories. All concurrency control lives behind the repository ports;
// the service itself holds no locks.
type Service struct {
	polls   domain.PollRepository
	ballots domain.BallotRepository
	live    domain.LiveCounter
	clock   domain.Clock
	ids     *ids.Generator
	logger  *slog.Logger
}

var _ domain.TabulationService = (*Service)(nil)

func NewService(
	polls domain.PollRepository,
	ballots domain.BallotRepository,
	live domain.LiveCounter,
	clock domain.Clock,
	idsGen *ids.Generator,
	logger *slog.Logger,
) *Service {
	if idsGen == nil {
		idsGen = ids.DefaultGenerator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		polls:   polls,
		ballots: ballots,
		live:    live,
		clock:   clock,
		ids:     idsGen,
		logger:  logger,
	}
}

// CreatePoll validates the configuration, fills method defaults and persists
// the poll together with its options in creation order.
func (s *Service) CreatePoll(ctx context.Context, poll domain.Poll, labels []string) (domain.Poll, error) {
	if err := validatePollInput(poll, labels); err != nil {
		return domain.Poll{}, err
	}
	poll, err := normalizeConfig(poll)
	if err != nil {
		return domain.Poll{}, err
	}

	now := s.clock.Now()
	poll.ID = domain.PollID(s.ids.New())
	poll.Status = domain.StatusOpen
	poll.CreatedAt = now
	poll.UpdatedAt = now
	poll.Options = make([]domain.Option, len(labels))
	for i, label := range labels {
		poll.Options[i] = domain.Option{
			ID:       domain.OptionID(s.ids.New()),
			PollID:   poll.ID,
			Label:    label,
			Position: i,
		}
	}

	if err := s.polls.Create(ctx, poll); err != nil {
		return domain.Poll{}, err
	}
	return poll, nil
}

// Submit validates and records one ballot. Resubmitting supersedes the
// voter's previous ballot; the repository guarantees a single active ballot
// per voter even under concurrent retries.
func (s *Service) Submit(ctx context.Context, pollID domain.PollID, voterID domain.VoterID, payload domain.Payload) (domain.Ballot, error) {
	if voterID == "" {
		return domain.Ballot{}, fmt.Errorf("%w: voter id required", ErrMalformedPayload)
	}
	poll, err := s.polls.FindByID(ctx, pollID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Ballot{}, ErrPollNotFound
		}
		return domain.Ballot{}, err
	}
	if poll.Status != domain.StatusOpen {
		return domain.Ballot{}, fmt.Errorf("%w: poll is %s", ErrPollClosed, poll.Status)
	}

	normalized, err := ValidateBallot(poll, payload)
	if err != nil {
		return domain.Ballot{}, err
	}

	ballot := domain.Ballot{
		ID:          domain.BallotID(s.ids.New()),
		PollID:      poll.ID,
		VoterID:     voterID,
		Method:      poll.Method,
		Payload:     normalized,
		SubmittedAt: s.clock.Now(),
	}
	if err := s.ballots.Record(ctx, ballot); err != nil {
		return domain.Ballot{}, err
	}

	s.bumpLiveCounters(ctx, poll, ballot)
	return ballot, nil
}

// ClosePoll freezes the ballot set. Closing an already closed or finalized
// poll is a no-op, so retries and concurrent closes converge on the same
// state.
func (s *Service) ClosePoll(ctx context.Context, pollID domain.PollID) error {
	changed, err := s.polls.UpdateStatus(ctx, pollID, domain.StatusOpen, domain.StatusClosed)
	if err != nil {
		return err
	}
	if changed {
		return nil
	}
	if _, err := s.polls.FindByID(ctx, pollID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrPollNotFound
		}
		return err
	}
	return nil
}

func (s *Service) GetPoll(ctx context.Context, pollID domain.PollID) (domain.Poll, error) {
	poll, err := s.polls.FindByID(ctx, pollID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Poll{}, ErrPollNotFound
		}
		return domain.Poll{}, err
	}
	return poll, nil
}

func (s *Service) ListOpen(ctx context.Context) ([]domain.Poll, error) {
	return s.polls.ListByStatus(ctx, domain.StatusOpen)
}

// LiveTally reads the advisory counters. The numbers count submissions, so
// superseded ballots are still in there; only finalization recounts from the
// ballot table.
func (s *Service) LiveTally(ctx context.Context, pollID domain.PollID) (domain.LiveTally, error) {
	poll, err := s.GetPoll(ctx, pollID)
	if err != nil {
		return domain.LiveTally{}, err
	}
	out := domain.LiveTally{
		PollID:   poll.ID,
		ByOption: make(map[domain.OptionID]int64, len(poll.Options)),
	}
	if s.live == nil {
		return out, nil
	}

	keys := make([]string, 0, len(poll.Options)+1)
	keys = append(keys, CounterKeySubmissions(poll.ID))
	for _, opt := range poll.Options {
		keys = append(keys, CounterKeyOption(poll.ID, opt.ID))
	}
	counts, err := s.live.GetAll(ctx, keys)
	if err != nil {
		return domain.LiveTally{}, err
	}
	out.Submissions = counts[CounterKeySubmissions(poll.ID)]
	for _, opt := range poll.Options {
		out.ByOption[opt.ID] = counts[CounterKeyOption(poll.ID, opt.ID)]
	}
	return out, nil
}

// bumpLiveCounters feeds the advisory counters. Failures are logged and never
// fail the submission.
func (s *Service) bumpLiveCounters(ctx context.Context, poll domain.Poll, ballot domain.Ballot) {
	if s.live == nil {
		return
	}
	if _, err := s.live.Increment(ctx, CounterKeySubmissions(poll.ID), 1); err != nil {
		s.logger.Warn("live counter increment failed", "poll_id", poll.ID, "error", err)
		return
	}
	for _, optionID := range counterSelections(poll.Method, ballot.Payload) {
		if _, err := s.live.Increment(ctx, CounterKeyOption(poll.ID, optionID), 1); err != nil {
			s.logger.Warn("live counter increment failed", "poll_id", poll.ID, "option_id", optionID, "error", err)
			return
		}
	}
}

func validatePollInput(poll domain.Poll, labels []string) error {
	if poll.Question == "" {
		return fmt.Errorf("%w: question required", ErrInvalidPoll)
	}
	if len(labels) == 0 {
		return fmt.Errorf("%w: at least one option", ErrInvalidPoll)
	}
	for _, label := range labels {
		if label == "" {
			return fmt.Errorf("%w: empty option label", ErrInvalidPoll)
		}
	}
	return nil
}

// normalizeConfig fills method defaults and rejects configurations the
// validator could never accept a ballot against.
func normalizeConfig(poll domain.Poll) (domain.Poll, error) {
	switch poll.Method {
	case domain.MethodSingle, domain.MethodRanked:
	case domain.MethodApproval:
		if poll.MaxSelections < 0 {
			return poll, fmt.Errorf("%w: negative selection cap", ErrInvalidPoll)
		}
	case domain.MethodRange:
		if poll.MinScore == 0 && poll.MaxScore == 0 {
			poll.MaxScore = defaultMaxScore
		}
		if poll.MaxScore < poll.MinScore {
			return poll, fmt.Errorf("%w: empty score range", ErrInvalidPoll)
		}
		// Zero is the documented default for unscored options and stays
		// legal even when the range excludes it.
		if poll.DefaultScore != 0 && (poll.DefaultScore < poll.MinScore || poll.DefaultScore > poll.MaxScore) {
			return poll, fmt.Errorf("%w: default score outside score range", ErrInvalidPoll)
		}
	case domain.MethodQuadratic:
		if poll.CreditBudget == 0 {
			poll.CreditBudget = defaultCreditBudget
		}
		if poll.CreditBudget < 0 || poll.CreditBudget > maxCreditBudget {
			return poll, fmt.Errorf("%w: credit budget outside supported range", ErrInvalidPoll)
		}
	default:
		return poll, fmt.Errorf("%w: unknown method %q", ErrInvalidPoll, poll.Method)
	}
	return poll, nil
}
