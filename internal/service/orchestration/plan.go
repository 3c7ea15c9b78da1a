package orchestration

import (
	"labmate/internal/domain/models/orchestration"
)

// SanitizePlan keeps known workers in their given order, drops repeats and
// caps the length at max. An empty result becomes a single chat step so a
// turn always makes visible progress.
func SanitizePlan(plan []orchestration.WorkerName, max int) []orchestration.WorkerName {
	seen := make(map[orchestration.WorkerName]bool, len(plan))
	out := make([]orchestration.WorkerName, 0, len(plan))
	for _, w := range plan {
		if !w.IsValid() || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	if len(out) == 0 {
		out = append(out, orchestration.WorkerChat)
	}
	return out
}

func planStrings(plan []orchestration.WorkerName) []string {
	out := make([]string, len(plan))
	for i, w := range plan {
		out[i] = string(w)
	}
	return out
}
