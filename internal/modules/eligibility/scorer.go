package eligibility

import "github.com/casevine/core/internal/models"

// ComputeVerdict derives the case verdict from the ten criterion scores.
// Pure function of the scores; any verdict the model itself claims is
// discarded in favor of this.
//
// strong:       at least four criteria scored 4 or above
// moderate:     at least three criteria scored 3 or above
// weak:         one or two criteria scored 3 or above
// insufficient: everything else
func ComputeVerdict(scores []int) models.Verdict {
	var atLeast4, atLeast3 int
	for _, s := range scores {
		if s >= 4 {
			atLeast4++
		}
		if s >= 3 {
			atLeast3++
		}
	}
	switch {
	case atLeast4 >= 4:
		return models.VerdictStrong
	case atLeast3 >= 3:
		return models.VerdictModerate
	case atLeast3 >= 1:
		return models.VerdictWeak
	default:
		return models.VerdictInsufficient
	}
}

func clampScore(s int) int {
	if s < 1 {
		return 1
	}
	if s > 5 {
		return 5
	}
	return s
}
