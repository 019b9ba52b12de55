package voting

import (
	"errors"
	"fmt"
	"sort"

	"github.com/openpolls/tabulator/internal/domain"
)

// Validation errors carry the rejection reason for the API boundary; callers
// match them with errors.Is.
var (
	ErrMalformedPayload  = errors.New("malformed ballot payload")
	ErrUnknownOption     = errors.New("unknown option")
	ErrDuplicateOption   = errors.New("duplicate option")
	ErrBoundsExceeded    = errors.New("ballot bounds exceeded")
	ErrIncompleteRanking = errors.New("incomplete ranking")
)

// ValidateBallot checks a payload against the poll configuration and returns
// a detached copy safe to persist. Rules run in a fixed order and each rule
// is a full pass over the payload: shape first, then option references, then
// duplicates and finally method bounds. A payload failing several rules
// always reports the earliest one, regardless of how its entries are laid
// out.
func ValidateBallot(poll domain.Poll, payload domain.Payload) (domain.Payload, error) {
	if !payload.MatchesShape(poll.Method) {
		return domain.Payload{}, fmt.Errorf("%w: expected %s shape", ErrMalformedPayload, poll.Method)
	}

	var err error
	switch poll.Method {
	case domain.MethodSingle:
		err = validateSingle(poll, payload)
	case domain.MethodApproval:
		err = validateApproval(poll, payload)
	case domain.MethodRange:
		err = validateRange(poll, payload)
	case domain.MethodQuadratic:
		err = validateQuadratic(poll, payload)
	case domain.MethodRanked:
		err = validateRanked(poll, payload)
	default:
		err = fmt.Errorf("%w: unsupported method %s", ErrMalformedPayload, poll.Method)
	}
	if err != nil {
		return domain.Payload{}, err
	}
	return payload.Clone(), nil
}

func validateSingle(poll domain.Poll, payload domain.Payload) error {
	if !poll.HasOption(payload.Option) {
		return fmt.Errorf("%w: %s", ErrUnknownOption, payload.Option)
	}
	return nil
}

func validateApproval(poll domain.Poll, payload domain.Payload) error {
	if err := checkOptionsExist(poll, payload.Options); err != nil {
		return err
	}
	if err := checkNoDuplicates(payload.Options); err != nil {
		return err
	}
	if poll.MaxSelections > 0 && len(payload.Options) > poll.MaxSelections {
		return fmt.Errorf("%w: selected %d options, at most %d allowed", ErrBoundsExceeded, len(payload.Options), poll.MaxSelections)
	}
	return nil
}

func validateRange(poll domain.Poll, payload domain.Payload) error {
	ids := sortedScoreIDs(payload.Scores)
	if err := checkOptionsExist(poll, ids); err != nil {
		return err
	}
	for _, id := range ids {
		score := payload.Scores[id]
		if score < poll.MinScore || score > poll.MaxScore {
			return fmt.Errorf("%w: score %d for %s outside [%d, %d]", ErrBoundsExceeded, score, id, poll.MinScore, poll.MaxScore)
		}
	}
	return nil
}

func validateQuadratic(poll domain.Poll, payload domain.Payload) error {
	ids := sortedScoreIDs(payload.Scores)
	if err := checkOptionsExist(poll, ids); err != nil {
		return err
	}
	var spent int64
	for _, id := range ids {
		score := payload.Scores[id]
		if score < 0 {
			return fmt.Errorf("%w: negative score %d for %s", ErrBoundsExceeded, score, id)
		}
		// score^2 >= score for score >= 1, so anything above the budget
		// overshoots before squaring.
		if score > poll.CreditBudget {
			return fmt.Errorf("%w: score %d for %s exceeds credit budget %d", ErrBoundsExceeded, score, id, poll.CreditBudget)
		}
		spent += score * score
		if spent > poll.CreditBudget || spent < 0 {
			return fmt.Errorf("%w: spent more than the %d credit budget", ErrBoundsExceeded, poll.CreditBudget)
		}
	}
	return nil
}

func validateRanked(poll domain.Poll, payload domain.Payload) error {
	if err := checkOptionsExist(poll, payload.Ranking); err != nil {
		return err
	}
	if err := checkNoDuplicates(payload.Ranking); err != nil {
		return err
	}
	if !poll.AllowPartialRanking && len(payload.Ranking) != len(poll.Options) {
		return fmt.Errorf("%w: ranked %d of %d options", ErrIncompleteRanking, len(payload.Ranking), len(poll.Options))
	}
	return nil
}

func checkOptionsExist(poll domain.Poll, ids []domain.OptionID) error {
	for _, id := range ids {
		if !poll.HasOption(id) {
			return fmt.Errorf("%w: %s", ErrUnknownOption, id)
		}
	}
	return nil
}

func checkNoDuplicates(ids []domain.OptionID) error {
	seen := make(map[domain.OptionID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return fmt.Errorf("%w: %s", ErrDuplicateOption, id)
		}
		seen[id] = true
	}
	return nil
}

// sortedScoreIDs flattens a score map into sorted option IDs. Map iteration
// order is randomized per run; the validator must report the same violation
// for the same payload every time.
func sortedScoreIDs(scores map[domain.OptionID]int64) []domain.OptionID {
	ids := make([]domain.OptionID, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
