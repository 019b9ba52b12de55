package tally

import (
	"github.com/openpolls/tabulator/internal/domain"
)

// RunElimination runs instant-runoff rounds over the rankings until an option
// holds a strict majority of the non-exhausted ballots. options must come in
// poll order; that order is the final tie-break during elimination, which is
// what makes every run over the same inputs produce the same rounds.
//
// The run ends without a winner when every ballot is exhausted or when the
// last two standing options hold exactly half of the live ballots each. A
// single option wins immediately with no rounds recorded.
func RunElimination(options []domain.OptionID, rankings [][]domain.OptionID) (*domain.OptionID, []domain.RoundSnapshot) {
	if len(options) == 0 {
		return nil, nil
	}
	if len(options) == 1 {
		w := options[0]
		return &w, nil
	}

	active := make(map[domain.OptionID]bool, len(options))
	for _, id := range options {
		active[id] = true
	}
	cumulative := make(map[domain.OptionID]int, len(options))

	var rounds []domain.RoundSnapshot
	for round := 1; ; round++ {
		counts := make(map[domain.OptionID]int, len(active))
		for id := range active {
			counts[id] = 0
		}
		exhausted := 0
		for _, ranking := range rankings {
			choice, ok := firstActive(ranking, active)
			if !ok {
				exhausted++
				continue
			}
			counts[choice]++
		}
		for id, n := range counts {
			cumulative[id] += n
		}

		snap := domain.RoundSnapshot{Round: round, Counts: counts, Exhausted: exhausted}
		live := len(rankings) - exhausted
		if live == 0 {
			rounds = append(rounds, snap)
			return nil, rounds
		}
		for _, id := range options {
			if active[id] && counts[id]*2 > live {
				rounds = append(rounds, snap)
				w := id
				return &w, rounds
			}
		}
		if len(active) == 2 {
			// Two options without a majority can only be an exact split.
			rounds = append(rounds, snap)
			return nil, rounds
		}

		out := pickElimination(options, active, counts, cumulative)
		snap.Eliminated = &out
		rounds = append(rounds, snap)
		delete(active, out)
	}
}

// firstActive returns the highest-ranked option that is still standing.
func firstActive(ranking []domain.OptionID, active map[domain.OptionID]bool) (domain.OptionID, bool) {
	for _, id := range ranking {
		if active[id] {
			return id, true
		}
	}
	return "", false
}

// pickElimination chooses the option to drop this round: lowest current
// count, then fewest first-preference votes accumulated across all rounds,
// then earliest position in the poll's option order.
func pickElimination(options []domain.OptionID, active map[domain.OptionID]bool, counts, cumulative map[domain.OptionID]int) domain.OptionID {
	var (
		out    domain.OptionID
		chosen bool
	)
	for _, id := range options {
		if !active[id] {
			continue
		}
		if !chosen {
			out = id
			chosen = true
			continue
		}
		switch {
		case counts[id] < counts[out]:
			out = id
		case counts[id] == counts[out] && cumulative[id] < cumulative[out]:
			out = id
		}
	}
	return out
}
