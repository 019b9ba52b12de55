// Package tally implements the per-method counting strategies, the
// instant-runoff calculator and the audit commitments over ballot sets.
package tally

import (
	"errors"
	"fmt"
	"math"

	"github.com/openpolls/tabulator/internal/domain"
)

var ErrUnsupportedMethod = errors.New("unsupported counting method")

// Strategy turns a poll and its active ballots into a TallyResult. Every
// implementation is a pure function of its inputs: same ballots, same result.
type Strategy interface {
	Method() domain.Method
	Tally(poll domain.Poll, ballots []domain.Ballot) (domain.TallyResult, error)
}

// ForMethod selects the strategy for a counting method.
func ForMethod(m domain.Method) (Strategy, error) {
	switch m {
	case domain.MethodSingle:
		return singleChoice{}, nil
	case domain.MethodApproval:
		return approval{}, nil
	case domain.MethodRange:
		return rangeVoting{}, nil
	case domain.MethodQuadratic:
		return quadratic{}, nil
	case domain.MethodRanked:
		return ranked{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, m)
	}
}

// newResult seeds a result with a zero score for every option, so polls with
// no countable ballots still report the full option set.
func newResult(poll domain.Poll) domain.TallyResult {
	scores := make(map[domain.OptionID]float64, len(poll.Options))
	for _, opt := range poll.Options {
		scores[opt.ID] = 0
	}
	return domain.TallyResult{
		PollID: poll.ID,
		Method: poll.Method,
		Scores: scores,
	}
}

// countable filters out ballots that should never reach a strategy: already
// superseded rows or payloads that do not match the poll's method.
func countable(poll domain.Poll, b domain.Ballot) bool {
	return b.Active() && b.Method == poll.Method && b.Payload.MatchesShape(poll.Method)
}

// winnerByScore returns the option with the strictly highest score, or nil
// when the top score is shared. Options are scanned in poll order so the
// outcome never depends on map iteration.
func winnerByScore(poll domain.Poll, scores map[domain.OptionID]float64) *domain.OptionID {
	var (
		best    domain.OptionID
		bestSet bool
		tied    bool
	)
	for _, opt := range poll.Options {
		s := scores[opt.ID]
		switch {
		case !bestSet || s > scores[best]:
			best = opt.ID
			bestSet = true
			tied = false
		case s == scores[best]:
			tied = true
		}
	}
	if !bestSet || tied {
		return nil
	}
	w := best
	return &w
}

type singleChoice struct{}

func (singleChoice) Method() domain.Method { return domain.MethodSingle }

func (singleChoice) Tally(poll domain.Poll, ballots []domain.Ballot) (domain.TallyResult, error) {
	out := newResult(poll)
	for _, b := range ballots {
		if !countable(poll, b) {
			continue
		}
		if _, ok := out.Scores[b.Payload.Option]; !ok {
			continue
		}
		out.Scores[b.Payload.Option]++
		out.BallotCount++
	}
	if out.BallotCount > 0 {
		out.Winner = winnerByScore(poll, out.Scores)
	}
	return out, nil
}

type approval struct{}

func (approval) Method() domain.Method { return domain.MethodApproval }

func (approval) Tally(poll domain.Poll, ballots []domain.Ballot) (domain.TallyResult, error) {
	out := newResult(poll)
	for _, b := range ballots {
		if !countable(poll, b) {
			continue
		}
		for _, id := range b.Payload.Options {
			if _, ok := out.Scores[id]; ok {
				out.Scores[id]++
			}
		}
		out.BallotCount++
	}
	if out.BallotCount > 0 {
		out.Winner = winnerByScore(poll, out.Scores)
	}
	return out, nil
}

type rangeVoting struct{}

func (rangeVoting) Method() domain.Method { return domain.MethodRange }

func (rangeVoting) Tally(poll domain.Poll, ballots []domain.Ballot) (domain.TallyResult, error) {
	out := newResult(poll)
	for _, b := range ballots {
		if !countable(poll, b) {
			continue
		}
		for _, opt := range poll.Options {
			score, ok := b.Payload.Scores[opt.ID]
			if !ok {
				score = poll.DefaultScore
			}
			out.Scores[opt.ID] += float64(score)
		}
		out.BallotCount++
	}
	if out.BallotCount > 0 {
		out.Winner = winnerByScore(poll, out.Scores)
	}
	return out, nil
}

type quadratic struct{}

func (quadratic) Method() domain.Method { return domain.MethodQuadratic }

// Tally credits each option with the square root of the credits a ballot
// spent on it, which is what makes vote buying quadratically expensive.
func (quadratic) Tally(poll domain.Poll, ballots []domain.Ballot) (domain.TallyResult, error) {
	out := newResult(poll)
	for _, b := range ballots {
		if !countable(poll, b) {
			continue
		}
		for id, score := range b.Payload.Scores {
			if _, ok := out.Scores[id]; !ok || score <= 0 {
				continue
			}
			out.Scores[id] += math.Sqrt(float64(score))
		}
		out.BallotCount++
	}
	if out.BallotCount > 0 {
		out.Winner = winnerByScore(poll, out.Scores)
	}
	return out, nil
}

type ranked struct{}

func (ranked) Method() domain.Method { return domain.MethodRanked }

func (ranked) Tally(poll domain.Poll, ballots []domain.Ballot) (domain.TallyResult, error) {
	out := newResult(poll)
	rankings := make([][]domain.OptionID, 0, len(ballots))
	for _, b := range ballots {
		if !countable(poll, b) {
			continue
		}
		rankings = append(rankings, b.Payload.Ranking)
		out.BallotCount++
	}
	if out.BallotCount == 0 {
		return out, nil
	}

	winner, rounds := RunElimination(poll.OptionIDs(), rankings)
	out.Winner = winner
	out.Rounds = rounds
	switch {
	case len(rounds) > 0:
		// Scores mirror the last recorded round; options eliminated
		// earlier keep the zero from newResult.
		last := rounds[len(rounds)-1]
		for id, n := range last.Counts {
			out.Scores[id] = float64(n)
		}
	case winner != nil:
		// Single-option poll: no rounds are run, every counted ballot
		// backs the only option.
		out.Scores[*winner] = float64(out.BallotCount)
	}
	return out, nil
}
