package domain

import (
	"time"
)

type (
	PollID   string
	OptionID string
	BallotID string
	VoterID  string
)

// Method identifies the social-choice method a poll is counted under.
type Method string

const (
	MethodSingle    Method = "single"
	MethodApproval  Method = "approval"
	MethodRange     Method = "range"
	MethodQuadratic Method = "quadratic"
	MethodRanked    Method = "ranked"
)

// methodAliasMultipleChoice is a legacy name still sent by older clients;
// it normalizes to approval voting.
const methodAliasMultipleChoice = "multiple_choice"

// ParseMethod maps a boundary string onto a Method and reports whether the
// value was recognized.
func ParseMethod(s string) (Method, bool) {
	switch s {
	case string(MethodSingle), string(MethodApproval), string(MethodRange), string(MethodQuadratic), string(MethodRanked):
		return Method(s), true
	case methodAliasMultipleChoice:
		return MethodApproval, true
	default:
		return "", false
	}
}

type PollStatus string

const (
	StatusOpen      PollStatus = "open"
	StatusClosed    PollStatus = "closed"
	StatusFinalized PollStatus = "finalized"
)

// Poll is the configuration of one vote. Everything except Status is
// immutable after creation; Status only moves forward, open -> closed ->
// finalized.
type Poll struct {
	ID       PollID     `gorm:"column:id;type:char(26);primaryKey" json:"id"`
	Question string     `gorm:"column:question;type:text;not null" json:"question"`
	Method   Method     `gorm:"column:method;type:text;not null" json:"method"`
	Status   PollStatus `gorm:"column:status;type:text;not null;index:idx_polls_status" json:"status"`
	Options  []Option   `gorm:"foreignKey:PollID;constraint:OnDelete:CASCADE" json:"options"`

	// Method-specific bounds. Zero values mean "not set" and are filled
	// with method defaults at creation time.
	MaxSelections       int   `gorm:"column:max_selections;not null;default:0" json:"max_selections,omitempty"`
	AllowPartialRanking bool  `gorm:"column:allow_partial_ranking;not null;default:false" json:"allow_partial_ranking,omitempty"`
	MinScore            int64 `gorm:"column:min_score;not null;default:0" json:"min_score,omitempty"`
	MaxScore            int64 `gorm:"column:max_score;not null;default:0" json:"max_score,omitempty"`
	DefaultScore        int64 `gorm:"column:default_score;not null;default:0" json:"default_score,omitempty"`
	CreditBudget        int64 `gorm:"column:credit_budget;not null;default:0" json:"credit_budget,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// Option is one choice inside a poll. Position records creation order, which
// doubles as the deterministic tie-break order between options.
type Option struct {
	ID       OptionID `gorm:"column:id;type:char(26);primaryKey" json:"id"`
	PollID   PollID   `gorm:"column:poll_id;type:char(26);not null;index:idx_options_poll" json:"poll_id"`
	Label    string   `gorm:"column:label;type:text;not null" json:"label"`
	Position int      `gorm:"column:position;not null" json:"position"`
}

// OptionIndex returns the position of id within the poll's option order.
func (p Poll) OptionIndex(id OptionID) (int, bool) {
	for i, opt := range p.Options {
		if opt.ID == id {
			return i, true
		}
	}
	return 0, false
}

// HasOption reports whether id belongs to the poll.
func (p Poll) HasOption(id OptionID) bool {
	_, ok := p.OptionIndex(id)
	return ok
}

// OptionIDs returns the option identifiers in poll order.
func (p Poll) OptionIDs() []OptionID {
	ids := make([]OptionID, len(p.Options))
	for i, opt := range p.Options {
		ids[i] = opt.ID
	}
	return ids
}

// Ballot is one voter's submission. Voters may resubmit at will: the newest
// ballot per (PollID, VoterID) stays active and older ones keep their rows
// with SupersededAt set, so the audit trail is never rewritten.
type Ballot struct {
	ID           BallotID   `gorm:"column:id;type:char(26);primaryKey" json:"id"`
	PollID       PollID     `gorm:"column:poll_id;type:char(26);not null;index:idx_ballots_poll;index:idx_ballots_active_voter,unique,where:superseded_at IS NULL,priority:1" json:"poll_id"`
	VoterID      VoterID    `gorm:"column:voter_id;type:text;not null;index:idx_ballots_active_voter,priority:2" json:"voter_id"`
	Method       Method     `gorm:"column:method;type:text;not null" json:"method"`
	Payload      Payload    `gorm:"column:payload;type:text;serializer:json;not null" json:"payload"`
	SubmittedAt  time.Time  `gorm:"column:submitted_at;not null" json:"submitted_at"`
	SupersededAt *time.Time `gorm:"column:superseded_at" json:"superseded_at,omitempty"`
}

// Active reports whether the ballot is the one that counts for its voter.
func (b Ballot) Active() bool {
	return b.SupersededAt == nil
}

// Newer reports whether b wins over other under last-write-wins: later
// SubmittedAt first, then the larger ballot ID. IDs are ULIDs, so the
// tie-break is stable and time-aligned.
func (b Ballot) Newer(other Ballot) bool {
	if !b.SubmittedAt.Equal(other.SubmittedAt) {
		return b.SubmittedAt.After(other.SubmittedAt)
	}
	return b.ID > other.ID
}

// TallyResult is the outcome of a finalized poll. It is written exactly once
// and never recomputed afterwards.
type TallyResult struct {
	PollID      PollID               `gorm:"column:poll_id;type:char(26);primaryKey" json:"poll_id"`
	Method      Method               `gorm:"column:method;type:text;not null" json:"method"`
	Winner      *OptionID            `gorm:"column:winner;type:char(26)" json:"winner"`
	Scores      map[OptionID]float64 `gorm:"column:scores;type:text;serializer:json;not null" json:"scores"`
	Rounds      []RoundSnapshot      `gorm:"column:rounds;type:text;serializer:json" json:"rounds,omitempty"`
	BallotCount int                  `gorm:"column:ballot_count;not null" json:"ballot_count"`
	BallotRoot  string               `gorm:"column:ballot_root;type:text;not null" json:"ballot_root"`
	ResultHash  string               `gorm:"column:result_hash;type:text;not null" json:"result_hash"`
	ComputedAt  time.Time            `gorm:"column:computed_at;not null" json:"computed_at"`
}

// RoundSnapshot captures one instant-runoff round: first-preference counts
// among the options still standing, who was eliminated, and how many ballots
// had no preference left.
type RoundSnapshot struct {
	Round      int              `json:"round"`
	Counts     map[OptionID]int `json:"counts"`
	Eliminated *OptionID        `json:"eliminated,omitempty"`
	Exhausted  int              `json:"exhausted"`
}

// LiveTally is the advisory pre-finalization view served from the counter
// cache. Resubmissions count again here; authoritative numbers come only
// from finalization.
type LiveTally struct {
	PollID      PollID             `json:"poll_id"`
	Submissions int64              `json:"submissions"`
	ByOption    map[OptionID]int64 `json:"by_option"`
}

func (Poll) TableName() string { return "polls" }

func (Option) TableName() string { return "options" }

func (Ballot) TableName() string { return "ballots" }

func (TallyResult) TableName() string { return "tally_results" }
