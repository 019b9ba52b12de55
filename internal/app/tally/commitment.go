package tally

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/openpolls/tabulator/internal/domain"
)

// BallotLeaf returns the audit-trail leaf hash for one ballot.
func BallotLeaf(b domain.Ballot) (string, error) {
	payload, err := json.Marshal(b.Payload)
	if err != nil {
		return "", fmt.Errorf("tally: encode payload: %w", err)
	}
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%s:%s:%s", b.PollID, b.ID, b.VoterID, payload))
	return hex.EncodeToString(sum[:]), nil
}

// BallotSetRoot folds the ballot leaves into a Merkle root. Leaves are
// ordered by ballot ID first, so the root does not depend on read order. An
// empty set has the empty root.
func BallotSetRoot(ballots []domain.Ballot) (string, error) {
	if len(ballots) == 0 {
		return "", nil
	}
	sorted := make([]domain.Ballot, len(ballots))
	copy(sorted, ballots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	level := make([]string, len(sorted))
	for i, b := range sorted {
		leaf, err := BallotLeaf(b)
		if err != nil {
			return "", err
		}
		level[i] = leaf
	}
	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				// Odd node moves up unchanged.
				next = append(next, level[i])
				continue
			}
			sum := sha256.Sum256([]byte(level[i] + level[i+1]))
			next = append(next, hex.EncodeToString(sum[:]))
		}
		level = next
	}
	return level[0], nil
}

// ResultHash computes the canonical hash of a result. ComputedAt stays out of
// the hash so an independent recount over the same ballot set reproduces it.
func ResultHash(r domain.TallyResult) (string, error) {
	canonical := struct {
		PollID      domain.PollID                `json:"poll_id"`
		Method      domain.Method                `json:"method"`
		Winner      *domain.OptionID             `json:"winner"`
		Scores      map[domain.OptionID]float64  `json:"scores"`
		Rounds      []domain.RoundSnapshot       `json:"rounds,omitempty"`
		BallotCount int                          `json:"ballot_count"`
		BallotRoot  string                       `json:"ballot_root"`
	}{r.PollID, r.Method, r.Winner, r.Scores, r.Rounds, r.BallotCount, r.BallotRoot}

	raw, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("tally: encode result: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
