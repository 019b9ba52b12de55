package voting

import (
	"fmt"

	"github.com/openpolls/tabulator/internal/domain"
)

func CounterKeySubmissions(id domain.PollID) string {
	return fmt.Sprintf("poll:%s:submissions", id)
}

func CounterKeyOption(pollID domain.PollID, optionID domain.OptionID) string {
	return fmt.Sprintf("poll:%s:option:%s", pollID, optionID)
}

// counterSelections lists the options a payload supports for the advisory
// live counters: the pick for single, every approved option for approval,
// positively scored options for range and quadratic, and the first preference
// for ranked ballots.
func counterSelections(method domain.Method, payload domain.Payload) []domain.OptionID {
	switch method {
	case domain.MethodSingle:
		return []domain.OptionID{payload.Option}
	case domain.MethodApproval:
		return payload.Options
	case domain.MethodRange, domain.MethodQuadratic:
		out := make([]domain.OptionID, 0, len(payload.Scores))
		for id, score := range payload.Scores {
			if score > 0 {
				out = append(out, id)
			}
		}
		return out
	case domain.MethodRanked:
		if len(payload.Ranking) == 0 {
			return nil
		}
		return payload.Ranking[:1]
	default:
		return nil
	}
}
