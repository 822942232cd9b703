// internal/review/events.go
package review

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"delivery-insights/internal/database"
)

// Kind is the stored discriminator of an activity event.
type Kind string

const (
	KindApproval       Kind = "approval"
	KindComment        Kind = "comment"
	KindUpdate         Kind = "update"
	KindRequestChanges Kind = "request_changes"
)

// EventMeta is shared by every activity event.
type EventMeta struct {
	Actor     string
	Timestamp time.Time
}

// Event is one entry of a pull request's activity log.
// The concrete types are Approval, Comment, Update and RequestChanges.
type Event interface {
	Meta() EventMeta
	Kind() Kind
}

// Approval is a reviewer approving the pull request.
type Approval struct {
	EventMeta
}

// Comment is a review or conversation comment.
type Comment struct {
	EventMeta
	Text string
}

// Update is a push to the source branch or a state transition of the pull request.
type Update struct {
	EventMeta
	NewState   string
	CommitHash string
}

// RequestChanges is a review asking the author for changes.
type RequestChanges struct {
	EventMeta
}

func (e Approval) Meta() EventMeta       { return e.EventMeta }
func (e Comment) Meta() EventMeta        { return e.EventMeta }
func (e Update) Meta() EventMeta         { return e.EventMeta }
func (e RequestChanges) Meta() EventMeta { return e.EventMeta }

func (Approval) Kind() Kind       { return KindApproval }
func (Comment) Kind() Kind        { return KindComment }
func (Update) Kind() Kind         { return KindUpdate }
func (RequestChanges) Kind() Kind { return KindRequestChanges }

// Approvers returns the distinct actors who approved, in order of first approval.
func Approvers(events []Event) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range events {
		if _, ok := e.(Approval); !ok {
			continue
		}
		actor := e.Meta().Actor
		if _, dup := seen[actor]; dup {
			continue
		}
		seen[actor] = struct{}{}
		out = append(out, actor)
	}
	return out
}

// FromRow decodes a stored activity row.
func FromRow(row database.PrActivity) (Event, error) {
	meta := EventMeta{Actor: row.Actor, Timestamp: row.OccurredAt}
	switch Kind(row.EventType) {
	case KindApproval:
		return Approval{EventMeta: meta}, nil
	case KindComment:
		return Comment{EventMeta: meta, Text: row.CommentText.String}, nil
	case KindUpdate:
		return Update{EventMeta: meta, NewState: row.NewState.String, CommitHash: row.CommitHash.String}, nil
	case KindRequestChanges:
		return RequestChanges{EventMeta: meta}, nil
	default:
		return nil, fmt.Errorf("unknown activity type %q", row.EventType)
	}
}

// ToParams encodes e for insertion under the pull request with the given storage id.
func ToParams(pullRequestID int64, e Event) database.CreatePRActivityParams {
	m := e.Meta()
	p := database.CreatePRActivityParams{
		PullRequestID: pullRequestID,
		EventType:     string(e.Kind()),
		Actor:         m.Actor,
		OccurredAt:    m.Timestamp,
	}
	switch ev := e.(type) {
	case Comment:
		p.CommentText = text(ev.Text)
	case Update:
		p.NewState = text(ev.NewState)
		p.CommitHash = text(ev.CommitHash)
	}
	return p
}

func text(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
