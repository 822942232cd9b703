// internal/jira/client_test.go
package jira

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	custom_errors "delivery-insights/internal/errors"
)

func setupTestClient(t *testing.T, handler http.Handler, maxComments int) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := NewClient(server.URL+"/", "bot@acme.io", "secret", logger, Options{
		RetryDelay:  10 * time.Millisecond,
		MaxComments: maxComments,
		HTTPClient:  server.Client(),
	})
	require.NoError(t, err)
	return client, server
}

const issueJSON = `{
	"key": "PROJ-7",
	"fields": {
		"summary": "Login form",
		"description": "Users need to log in",
		"status": {"name": "In Review"},
		"assignee": {"displayName": "Ann"},
		"priority": {"name": "High"},
		"issuetype": {"name": "Story"},
		"parent": {"key": "PROJ-1"},
		"subtasks": [{"key": "PROJ-8"}],
		"labels": ["auth"],
		"comment": {"comments": [
			{"author": {"displayName": "Bob"}, "body": "first", "created": "2024-05-01T10:00:00.000+0000"},
			{"author": {"displayName": "Cy"}, "body": "second", "created": "2024-05-02T10:00:00.000+0000"},
			{"author": {"displayName": "Ann"}, "body": "third", "created": "2024-05-03T10:00:00.000+0000"}
		]}
	},
	"changelog": {"histories": [
		{"author": {"displayName": "Ann"}, "created": "2024-05-04T09:00:00.000+0200",
		 "items": [{"field": "status", "fromString": "In Progress", "toString": "In Review"}]},
		{"author": {"displayName": "Ann"}, "created": "2024-05-02T09:00:00.000+0000",
		 "items": [{"field": "assignee", "fromString": "", "toString": "Ann"},
		           {"field": "status", "fromString": "To Do", "toString": "In Progress"}]}
	]}
}`

func TestClient_GetTicket(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/2/issue/PROJ-7", r.URL.Path)
		assert.Equal(t, "changelog", r.URL.Query().Get("expand"))
		assert.Equal(t, issueFields, r.URL.Query().Get("fields"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "bot@acme.io", user)
		assert.Equal(t, "secret", pass)
		fmt.Fprintln(w, issueJSON)
	})
	client, server := setupTestClient(t, handler, 2)
	defer server.Close()

	ticket, err := client.GetTicket(context.Background(), "PROJ-7")

	require.NoError(t, err)
	assert.Equal(t, "PROJ-7", ticket.Key)
	assert.Equal(t, "In Review", ticket.Status)
	assert.Equal(t, "Ann", ticket.Assignee)
	assert.Equal(t, "High", ticket.Priority)
	assert.Equal(t, "Story", ticket.Type)
	assert.Equal(t, "PROJ-1", ticket.ParentKey)
	assert.Equal(t, []string{"PROJ-8"}, ticket.Subtasks)

	require.Len(t, ticket.Comments, 2, "only the most recent comments are kept")
	assert.Equal(t, "second", ticket.Comments[0].Body)
	assert.Equal(t, "third", ticket.Comments[1].Body)

	require.Len(t, ticket.StatusChanges, 2, "non-status history items are ignored")
	assert.Equal(t, "In Progress", ticket.StatusChanges[0].ToStatus)
	assert.Equal(t, "In Review", ticket.StatusChanges[1].ToStatus)
	assert.True(t, ticket.StatusChanges[1].ChangedAt.Equal(time.Date(2024, 5, 4, 7, 0, 0, 0, time.UTC)))
}

func TestClient_GetTicket_NotFound(t *testing.T) {
	var requestCount int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestCount, 1)
		w.WriteHeader(http.StatusNotFound)
	})
	client, server := setupTestClient(t, handler, 0)
	defer server.Close()

	_, err := client.GetTicket(context.Background(), "GONE-1")

	assert.ErrorIs(t, err, custom_errors.ErrTicketNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requestCount))
}

func TestClient_GetTicket_Retry(t *testing.T) {
	t.Run("retries once on 429", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&requestCount, 1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			fmt.Fprintln(w, `{"key": "PROJ-7", "fields": {"status": {"name": "Done"}}}`)
		})
		client, server := setupTestClient(t, handler, 0)
		defer server.Close()

		ticket, err := client.GetTicket(context.Background(), "PROJ-7")

		require.NoError(t, err)
		assert.Equal(t, "Done", ticket.Status)
		assert.Equal(t, int32(2), atomic.LoadInt32(&requestCount))
	})

	t.Run("gives up after the retry", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requestCount, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		client, server := setupTestClient(t, handler, 0)
		defer server.Close()

		_, err := client.GetTicket(context.Background(), "PROJ-7")

		var upstream *custom_errors.ErrUpstream
		require.ErrorAs(t, err, &upstream)
		assert.Equal(t, http.StatusServiceUnavailable, upstream.StatusCode)
		assert.Equal(t, int32(maxRetries+1), atomic.LoadInt32(&requestCount))
	})
}
