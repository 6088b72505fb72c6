package polls

import (
	"math"

	"github.com/aura-polls/backend/internal/models"
)

// Tally turns raw per-option counts into results with percentages of the
// poll's total votes, rounded to two decimals. Input order is kept. A poll
// with no votes reports 0 for every option.
func Tally(counts []models.OptionCount) []models.PollResult {
	total := 0
	for _, c := range counts {
		total += c.VoteCount
	}
	out := make([]models.PollResult, 0, len(counts))
	for _, c := range counts {
		pct := 0.0
		if total > 0 {
			pct = math.Round(float64(c.VoteCount)*10000/float64(total)) / 100
		}
		out = append(out, models.PollResult{
			OptionID:   c.OptionID,
			OptionText: c.OptionText,
			VoteCount:  c.VoteCount,
			Percentage: pct,
		})
	}
	return out
}
