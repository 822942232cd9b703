// internal/burndown/burndown.go
package burndown

import (
	"slices"
	"strings"
	"time"

	"delivery-insights/internal/model"
)

// Category is one of the four fixed burndown buckets.
type Category string

const (
	Done       Category = "done"
	InReview   Category = "in_review"
	InProgress Category = "in_progress"
	Todo       Category = "todo"
)

var (
	doneStatuses       = []string{"done", "closed", "resolved", "released", "wontdo"}
	inReviewStatuses   = []string{"inreview", "codereview", "review", "inqa", "qa", "testing"}
	inProgressStatuses = []string{"inprogress", "indevelopment", "doing", "blocked"}
)

var statusSeparators = strings.NewReplacer(" ", "", "_", "", "-", "", "'", "")

// Bucket maps a tracker status onto its category, ignoring case and word separators.
// Unknown statuses are Todo.
func Bucket(status string) Category {
	s := statusSeparators.Replace(strings.ToLower(strings.TrimSpace(status)))
	switch {
	case slices.Contains(doneStatuses, s):
		return Done
	case slices.Contains(inReviewStatuses, s):
		return InReview
	case slices.Contains(inProgressStatuses, s):
		return InProgress
	default:
		return Todo
	}
}

// Day is the point-in-time status distribution of a sprint's tickets at the end of one calendar day.
type Day struct {
	Date       string `json:"date"`
	Done       int    `json:"done"`
	InReview   int    `json:"in_review"`
	InProgress int    `json:"in_progress"`
	Todo       int    `json:"todo"`
	Remaining  int    `json:"remaining"`
	Total      int    `json:"total"`
	Commits    int    `json:"commits"`
}

// Reconstruct replays each ticket's status changes to produce one Day per calendar day of the sprint,
// start and end dates inclusive, evaluated in loc. A ticket without a change up to a day's end counts as Todo.
// commitTimes are the commit timestamps on branches linked to the sprint's tickets.
func Reconstruct(sprint model.Sprint, changes []model.StatusChange, commitTimes []time.Time, loc *time.Location) []Day {
	if loc == nil {
		loc = time.UTC
	}
	start := calendarDay(sprint.StartDate, loc)
	end := calendarDay(sprint.EndDate, loc)
	if end.Before(start) {
		return nil
	}

	keys := slices.Clone(sprint.TicketKeys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	history := make(map[string][]model.StatusChange, len(keys))
	for _, c := range changes {
		history[c.TicketKey] = append(history[c.TicketKey], c)
	}
	for k := range history {
		slices.SortStableFunc(history[k], func(a, b model.StatusChange) int { return a.ChangedAt.Compare(b.ChangedAt) })
	}

	commitsPerDay := make(map[string]int)
	for _, ts := range commitTimes {
		commitsPerDay[ts.In(loc).Format(time.DateOnly)]++
	}

	var days []Day
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		dayEnd := day.AddDate(0, 0, 1)
		d := Day{Date: day.Format(time.DateOnly), Total: len(keys)}
		for _, k := range keys {
			switch Bucket(statusAt(history[k], dayEnd)) {
			case Done:
				d.Done++
			case InReview:
				d.InReview++
			case InProgress:
				d.InProgress++
			default:
				d.Todo++
			}
		}
		d.Remaining = d.Total - d.Done
		d.Commits = commitsPerDay[d.Date]
		days = append(days, d)
	}
	return days
}

// Window returns the half-open instant range [from, to) covered by the sprint's calendar days in loc.
func Window(sprint model.Sprint, loc *time.Location) (from, to time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	return calendarDay(sprint.StartDate, loc), calendarDay(sprint.EndDate, loc).AddDate(0, 0, 1)
}

// statusAt returns the target status of the latest change strictly before dayEnd, the start of the next day.
func statusAt(changes []model.StatusChange, dayEnd time.Time) string {
	status := ""
	for _, c := range changes {
		if !c.ChangedAt.Before(dayEnd) {
			break
		}
		status = c.ToStatus
	}
	return status
}

func calendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
