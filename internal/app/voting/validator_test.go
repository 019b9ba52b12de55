package voting

import (
	"errors"
	"testing"

	"github.com/openpolls/tabulator/internal/domain"
)

func validatorPoll(method domain.Method) domain.Poll {
	poll := domain.Poll{
		ID:     "poll-1",
		Method: method,
		Status: domain.StatusOpen,
	}
	for i, id := range []domain.OptionID{"opt-a", "opt-b", "opt-c"} {
		poll.Options = append(poll.Options, domain.Option{
			ID:       id,
			PollID:   poll.ID,
			Label:    string(id),
			Position: i,
		})
	}
	return poll
}

func TestValidateBallotTagsEveryRejection(t *testing.T) {
	single := validatorPoll(domain.MethodSingle)

	approvalCapped := validatorPoll(domain.MethodApproval)
	approvalCapped.MaxSelections = 2

	ranged := validatorPoll(domain.MethodRange)
	ranged.MinScore = 0
	ranged.MaxScore = 10

	quadraticPoll := validatorPoll(domain.MethodQuadratic)
	quadraticPoll.CreditBudget = 100

	rankedFull := validatorPoll(domain.MethodRanked)

	rankedPartial := validatorPoll(domain.MethodRanked)
	rankedPartial.AllowPartialRanking = true

	tests := []struct {
		name    string
		poll    domain.Poll
		payload domain.Payload
		wantErr error
	}{
		{
			name:    "single valid",
			poll:    single,
			payload: domain.Payload{Option: "opt-a"},
		},
		{
			name:    "single with approval shape",
			poll:    single,
			payload: domain.Payload{Options: []domain.OptionID{"opt-a"}},
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "single empty payload",
			poll:    single,
			payload: domain.Payload{},
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "single unknown option",
			poll:    single,
			payload: domain.Payload{Option: "opt-x"},
			wantErr: ErrUnknownOption,
		},
		{
			name:    "approval valid",
			poll:    approvalCapped,
			payload: domain.Payload{Options: []domain.OptionID{"opt-a", "opt-c"}},
		},
		{
			name:    "approval unknown option",
			poll:    approvalCapped,
			payload: domain.Payload{Options: []domain.OptionID{"opt-a", "opt-x"}},
			wantErr: ErrUnknownOption,
		},
		{
			name:    "approval duplicate option",
			poll:    approvalCapped,
			payload: domain.Payload{Options: []domain.OptionID{"opt-a", "opt-a"}},
			wantErr: ErrDuplicateOption,
		},
		{
			name:    "approval above selection cap",
			poll:    approvalCapped,
			payload: domain.Payload{Options: []domain.OptionID{"opt-a", "opt-b", "opt-c"}},
			wantErr: ErrBoundsExceeded,
		},
		{
			name:    "range valid",
			poll:    ranged,
			payload: domain.Payload{Scores: map[domain.OptionID]int64{"opt-a": 10, "opt-b": 0}},
		},
		{
			name:    "range above max",
			poll:    ranged,
			payload: domain.Payload{Scores: map[domain.OptionID]int64{"opt-a": 11}},
			wantErr: ErrBoundsExceeded,
		},
		{
			name:    "range below min",
			poll:    ranged,
			payload: domain.Payload{Scores: map[domain.OptionID]int64{"opt-a": -1}},
			wantErr: ErrBoundsExceeded,
		},
		{
			name:    "range unknown option",
			poll:    ranged,
			payload: domain.Payload{Scores: map[domain.OptionID]int64{"opt-x": 5}},
			wantErr: ErrUnknownOption,
		},
		{
			name:    "quadratic valid at exact budget",
			poll:    quadraticPoll,
			payload: domain.Payload{Scores: map[domain.OptionID]int64{"opt-a": 6, "opt-b": 8}},
		},
		{
			name:    "quadratic over budget",
			poll:    quadraticPoll,
			payload: domain.Payload{Scores: map[domain.OptionID]int64{"opt-a": 7, "opt-b": 8}},
			wantErr: ErrBoundsExceeded,
		},
		{
			name:    "quadratic negative score",
			poll:    quadraticPoll,
			payload: domain.Payload{Scores: map[domain.OptionID]int64{"opt-a": -2}},
			wantErr: ErrBoundsExceeded,
		},
		{
			name:    "quadratic single huge score",
			poll:    quadraticPoll,
			payload: domain.Payload{Scores: map[domain.OptionID]int64{"opt-a": 1 << 40}},
			wantErr: ErrBoundsExceeded,
		},
		{
			name:    "ranked full permutation",
			poll:    rankedFull,
			payload: domain.Payload{Ranking: []domain.OptionID{"opt-c", "opt-a", "opt-b"}},
		},
		{
			name:    "ranked missing option",
			poll:    rankedFull,
			payload: domain.Payload{Ranking: []domain.OptionID{"opt-a", "opt-b"}},
			wantErr: ErrIncompleteRanking,
		},
		{
			name:    "ranked duplicate option",
			poll:    rankedFull,
			payload: domain.Payload{Ranking: []domain.OptionID{"opt-a", "opt-a", "opt-b"}},
			wantErr: ErrDuplicateOption,
		},
		{
			name:    "ranked unknown option",
			poll:    rankedFull,
			payload: domain.Payload{Ranking: []domain.OptionID{"opt-a", "opt-b", "opt-x"}},
			wantErr: ErrUnknownOption,
		},
		{
			name:    "ranked prefix allowed when partial",
			poll:    rankedPartial,
			payload: domain.Payload{Ranking: []domain.OptionID{"opt-b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateBallot(tt.poll, tt.payload)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected payload to validate, got: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateBallotChecksShapeBeforeReferences(t *testing.T) {
	poll := validatorPoll(domain.MethodSingle)
	// Both shape and option reference are wrong; shape must win.
	payload := domain.Payload{Option: "opt-x", Ranking: []domain.OptionID{"opt-x"}}

	_, err := ValidateBallot(poll, payload)
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected %v, got %v", ErrMalformedPayload, err)
	}
}

func TestValidateBallotChecksReferencesBeforeDuplicates(t *testing.T) {
	tests := []struct {
		name    string
		poll    domain.Poll
		payload domain.Payload
	}{
		{
			name:    "approval duplicate plus unknown",
			poll:    validatorPoll(domain.MethodApproval),
			payload: domain.Payload{Options: []domain.OptionID{"opt-b", "opt-b", "opt-x"}},
		},
		{
			name:    "ranked duplicate plus unknown",
			poll:    validatorPoll(domain.MethodRanked),
			payload: domain.Payload{Ranking: []domain.OptionID{"opt-a", "opt-a", "opt-x"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateBallot(tt.poll, tt.payload)
			if !errors.Is(err, ErrUnknownOption) {
				t.Fatalf("expected %v, got %v", ErrUnknownOption, err)
			}
		})
	}
}

func TestValidateBallotReportsSameViolationEveryRun(t *testing.T) {
	ranged := validatorPoll(domain.MethodRange)
	ranged.MinScore = 0
	ranged.MaxScore = 10

	quadraticPoll := validatorPoll(domain.MethodQuadratic)
	quadraticPoll.CreditBudget = 100

	tests := []struct {
		name    string
		poll    domain.Poll
		payload domain.Payload
		wantErr error
	}{
		{
			name:    "range out of bounds plus unknown",
			poll:    ranged,
			payload: domain.Payload{Scores: map[domain.OptionID]int64{"opt-a": 99, "opt-x": 5}},
			wantErr: ErrUnknownOption,
		},
		{
			name:    "quadratic over budget plus unknown",
			poll:    quadraticPoll,
			payload: domain.Payload{Scores: map[domain.OptionID]int64{"opt-a": 101, "opt-x": 1}},
			wantErr: ErrUnknownOption,
		},
		{
			name:    "range two scores out of bounds",
			poll:    ranged,
			payload: domain.Payload{Scores: map[domain.OptionID]int64{"opt-a": -5, "opt-b": 99}},
			wantErr: ErrBoundsExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Map iteration order changes from run to run; the reported
			// violation must not.
			var first string
			for i := 0; i < 50; i++ {
				_, err := ValidateBallot(tt.poll, tt.payload)
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("run %d: expected %v, got %v", i, tt.wantErr, err)
				}
				if i == 0 {
					first = err.Error()
					continue
				}
				if err.Error() != first {
					t.Fatalf("run %d: error flipped from %q to %q", i, first, err.Error())
				}
			}
		})
	}
}

func TestValidateBallotReturnsDetachedCopy(t *testing.T) {
	poll := validatorPoll(domain.MethodApproval)
	payload := domain.Payload{Options: []domain.OptionID{"opt-a", "opt-b"}}

	normalized, err := ValidateBallot(poll, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload.Options[0] = "opt-c"
	if normalized.Options[0] != "opt-a" {
		t.Fatal("validated payload shares memory with the caller's slice")
	}
}
