// Package stats turns attempt history into per-user and per-test summaries.
package stats

import (
	"sort"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
)

// Unassigned is reported for users without a group.
const Unassigned = "unassigned"

// Record is one attempt joined with its user. Group is empty when the user
// has no group.
type Record struct {
	UserID   int64
	Username string
	Group    string
	Score    int
	Total    int
}

func (r Record) percent() float64 {
	if r.Total <= 0 {
		return 0
	}
	return float64(r.Score) / float64(r.Total) * 100
}

type UserStat struct {
	UserID       int64  `json:"userId"`
	Username     string `json:"username"`
	Group        string `json:"group"`
	Attempts     int    `json:"attempts"`
	BestScore    int    `json:"bestScore"`
	WorstScore   int    `json:"worstScore"`
	AverageScore int    `json:"averageScore"`
}

type Summary struct {
	UserStats     []UserStat `json:"userStats"`
	TotalUsers    int        `json:"totalUsers"`
	TotalAttempts int        `json:"totalAttempts"`
}

type acc struct {
	userID   int64
	username string
	group    string
	n        int
	sum      float64
	best     float64
	worst    float64
}

// Summarize groups records by user. Best, worst and average work on raw
// percentages and are rounded once, half up, on output.
func Summarize(records []Record) Summary {
	byUser := make(map[int64]*acc)
	order := make([]*acc, 0)
	for _, r := range records {
		p := r.percent()
		a, ok := byUser[r.UserID]
		if !ok {
			a = &acc{userID: r.UserID, username: r.Username, group: r.Group, best: p, worst: p}
			byUser[r.UserID] = a
			order = append(order, a)
		}
		a.n++
		a.sum += p
		if p > a.best {
			a.best = p
		}
		if p < a.worst {
			a.worst = p
		}
	}

	sort.SliceStable(order, func(i, j int) bool { return less(order[i], order[j]) })

	out := Summary{
		UserStats:     make([]UserStat, 0, len(order)),
		TotalUsers:    len(order),
		TotalAttempts: len(records),
	}
	for _, a := range order {
		group := a.group
		if group == "" {
			group = Unassigned
		}
		out.UserStats = append(out.UserStats, UserStat{
			UserID:       a.userID,
			Username:     a.username,
			Group:        group,
			Attempts:     a.n,
			BestScore:    grading.RoundHalfUp(a.best),
			WorstScore:   grading.RoundHalfUp(a.worst),
			AverageScore: grading.RoundHalfUp(a.sum / float64(a.n)),
		})
	}
	return out
}

// less orders by group (users without a group last), then username, then id.
// Comparisons are byte-wise.
func less(a, b *acc) bool {
	if (a.group == "") != (b.group == "") {
		return b.group == ""
	}
	if a.group != b.group {
		return a.group < b.group
	}
	if a.username != b.username {
		return a.username < b.username
	}
	return a.userID < b.userID
}
