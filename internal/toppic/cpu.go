package toppic

import (
	"hash/fnv"
	"sort"
)

// CPUChoice is the automatic judge. It scores every submission against the
// current prompt with a stable hash so replays resolve the same way.
func CPUChoice(prompt string, submissions map[string]string) string {
	users := make([]string, 0, len(submissions))
	for uid := range submissions {
		users = append(users, uid)
	}
	sort.Strings(users)

	best, bestScore := "", uint32(0)
	for _, uid := range users {
		h := fnv.New32a()
		_, _ = h.Write([]byte(prompt))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(submissions[uid]))
		if score := h.Sum32(); best == "" || score > bestScore {
			best, bestScore = uid, score
		}
	}
	return best
}
