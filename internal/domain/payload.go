package domain

// Payload carries the method-shaped contents of a ballot. Exactly one field
// group is populated for a given method:
//
//	single     -> Option
//	approval   -> Options
//	range      -> Scores
//	quadratic  -> Scores
//	ranked     -> Ranking
//
// The zero value is an empty payload and never validates.
type Payload struct {
	Option  OptionID           `json:"option,omitempty"`
	Options []OptionID         `json:"options,omitempty"`
	Scores  map[OptionID]int64 `json:"scores,omitempty"`
	Ranking []OptionID         `json:"ranking,omitempty"`
}

// MatchesShape reports whether the payload populates the one field group the
// method expects and nothing else.
func (p Payload) MatchesShape(m Method) bool {
	switch m {
	case MethodSingle:
		return p.Option != "" && len(p.Options) == 0 && len(p.Scores) == 0 && len(p.Ranking) == 0
	case MethodApproval:
		return p.Option == "" && len(p.Options) > 0 && len(p.Scores) == 0 && len(p.Ranking) == 0
	case MethodRange, MethodQuadratic:
		return p.Option == "" && len(p.Options) == 0 && len(p.Scores) > 0 && len(p.Ranking) == 0
	case MethodRanked:
		return p.Option == "" && len(p.Options) == 0 && len(p.Scores) == 0 && len(p.Ranking) > 0
	default:
		return false
	}
}

// Clone returns a deep copy so validated payloads cannot be mutated through
// the caller's slices or maps afterwards.
func (p Payload) Clone() Payload {
	out := Payload{Option: p.Option}
	if p.Options != nil {
		out.Options = make([]OptionID, len(p.Options))
		copy(out.Options, p.Options)
	}
	if p.Scores != nil {
		out.Scores = make(map[OptionID]int64, len(p.Scores))
		for id, s := range p.Scores {
			out.Scores[id] = s
		}
	}
	if p.Ranking != nil {
		out.Ranking = make([]OptionID, len(p.Ranking))
		copy(out.Ranking, p.Ranking)
	}
	return out
}
