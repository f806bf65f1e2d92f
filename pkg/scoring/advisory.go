package scoring

import (
	"github.com/Mindburn-Labs/deedchain/pkg/deed"
)

// Advisory is the per-deed advisory outcome handed to an external
// reward-decision component.
type Advisory struct {
	RecordID       string  `json:"record_id"`
	MoralPosition  float64 `json:"moral_position"`
	GrantUnits     float64 `json:"grant_units"`
	Recommendation int     `json:"recommendation"`
}

// DeedAdvisory scores a single record. A harm flag or any ethics flag zeroes
// every field regardless of category.
func (e *Engine) DeedAdvisory(r deed.Record) Advisory {
	out := Advisory{RecordID: r.ID}
	if !r.Clean() {
		return out
	}
	a := e.w.Advisory

	good := 0
	for _, t := range r.Tags {
		if deed.Category(t).IsGoodDeed() {
			good++
		}
	}
	out.MoralPosition = clamp01(a.Base - float64(len(r.EthicsFlags))*a.EthicsPenalty + float64(good)*a.GoodTagBonus)

	base, ok := a.GrantBase[r.Category]
	if !ok {
		base = a.DefaultGrant
	}
	out.GrantUnits = base * out.MoralPosition * (1 + a.PerTagBonus*float64(len(r.Tags)))

	if r.Category.IsGoodDeed() {
		out.Recommendation = 1
	}
	return out
}
