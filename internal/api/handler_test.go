// internal/api/handler_test.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"delivery-insights/internal/burndown"
	"delivery-insights/internal/database"
)

// MockQuerier is a mock of the database.Querier interface.
type MockQuerier struct {
	mock.Mock
}

var _ database.Querier = (*MockQuerier)(nil)

func (m *MockQuerier) CreateScanRun(ctx context.Context, arg database.CreateScanRunParams) error {
	return m.Called(ctx, arg).Error(0)
}
func (m *MockQuerier) FinishScanRun(ctx context.Context, arg database.FinishScanRunParams) error {
	return m.Called(ctx, arg).Error(0)
}
func (m *MockQuerier) GetExistingCommitShas(ctx context.Context, shas []string) ([]string, error) {
	args := m.Called(ctx, shas)
	return args.Get(0).([]string), args.Error(1)
}
func (m *MockQuerier) CreateCommits(ctx context.Context, arg []database.CreateCommitsParams) (int64, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockQuerier) GetCommitsByRepo(ctx context.Context, arg database.GetCommitsByRepoParams) ([]database.Commit, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).([]database.Commit), args.Error(1)
}
func (m *MockQuerier) GetLatestCommitDateForRepo(ctx context.Context, repo string) (pgtype.Timestamptz, error) {
	args := m.Called(ctx, repo)
	return args.Get(0).(pgtype.Timestamptz), args.Error(1)
}
func (m *MockQuerier) GetTopNCommitAuthors(ctx context.Context, arg database.GetTopNCommitAuthorsParams) ([]database.GetTopNCommitAuthorsRow, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).([]database.GetTopNCommitAuthorsRow), args.Error(1)
}
func (m *MockQuerier) GetCommitTimesForTicketBranches(ctx context.Context, arg database.GetCommitTimesForTicketBranchesParams) ([]time.Time, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).([]time.Time), args.Error(1)
}
func (m *MockQuerier) GetBranchesByRepo(ctx context.Context, repo string) ([]database.Branch, error) {
	args := m.Called(ctx, repo)
	return args.Get(0).([]database.Branch), args.Error(1)
}
func (m *MockQuerier) MarkBranchesInactive(ctx context.Context, repo string) (int64, error) {
	args := m.Called(ctx, repo)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockQuerier) UpsertBranch(ctx context.Context, arg database.UpsertBranchParams) (bool, error) {
	args := m.Called(ctx, arg)
	return args.Bool(0), args.Error(1)
}
func (m *MockQuerier) GetInactiveBranches(ctx context.Context, repo string) ([]database.Branch, error) {
	args := m.Called(ctx, repo)
	return args.Get(0).([]database.Branch), args.Error(1)
}
func (m *MockQuerier) SetBranchPullRequest(ctx context.Context, arg database.SetBranchPullRequestParams) (int64, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockQuerier) GetTicket(ctx context.Context, jiraKey string) (database.Ticket, error) {
	args := m.Called(ctx, jiraKey)
	return args.Get(0).(database.Ticket), args.Error(1)
}
func (m *MockQuerier) UpsertTicket(ctx context.Context, arg database.UpsertTicketParams) error {
	return m.Called(ctx, arg).Error(0)
}
func (m *MockQuerier) CreateStatusChanges(ctx context.Context, arg []database.CreateStatusChangeParams) (int64, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockQuerier) GetStatusChangesByTicketKeys(ctx context.Context, jiraKeys []string) ([]database.TicketStatusChange, error) {
	args := m.Called(ctx, jiraKeys)
	return args.Get(0).([]database.TicketStatusChange), args.Error(1)
}
func (m *MockQuerier) GetLatestTicketSummary(ctx context.Context, arg database.GetLatestTicketSummaryParams) (database.TicketSummary, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(database.TicketSummary), args.Error(1)
}
func (m *MockQuerier) CreateTicketSummary(ctx context.Context, arg database.CreateTicketSummaryParams) (database.TicketSummary, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(database.TicketSummary), args.Error(1)
}
func (m *MockQuerier) GetTicketSummaryChain(ctx context.Context, arg database.GetTicketSummaryChainParams) ([]database.TicketSummary, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).([]database.TicketSummary), args.Error(1)
}
func (m *MockQuerier) GetTicketSummaryHeads(ctx context.Context, jiraKey string) ([]database.TicketSummary, error) {
	args := m.Called(ctx, jiraKey)
	return args.Get(0).([]database.TicketSummary), args.Error(1)
}
func (m *MockQuerier) UpsertPullRequest(ctx context.Context, arg database.UpsertPullRequestParams) (database.PullRequest, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(database.PullRequest), args.Error(1)
}
func (m *MockQuerier) GetPullRequestsByRepo(ctx context.Context, repo string) ([]database.PullRequest, error) {
	args := m.Called(ctx, repo)
	return args.Get(0).([]database.PullRequest), args.Error(1)
}
func (m *MockQuerier) UpdatePullRequestMetrics(ctx context.Context, arg database.UpdatePullRequestMetricsParams) error {
	return m.Called(ctx, arg).Error(0)
}
func (m *MockQuerier) CreatePRActivities(ctx context.Context, arg []database.CreatePRActivityParams) (int64, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockQuerier) GetPRActivities(ctx context.Context, pullRequestID int64) ([]database.PrActivity, error) {
	args := m.Called(ctx, pullRequestID)
	return args.Get(0).([]database.PrActivity), args.Error(1)
}
func (m *MockQuerier) GetReviewerLeaderboard(ctx context.Context, arg database.GetReviewerLeaderboardParams) ([]database.GetReviewerLeaderboardRow, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).([]database.GetReviewerLeaderboardRow), args.Error(1)
}
func (m *MockQuerier) UpsertSprint(ctx context.Context, arg database.UpsertSprintParams) (database.Sprint, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(database.Sprint), args.Error(1)
}
func (m *MockQuerier) GetSprint(ctx context.Context, id string) (database.Sprint, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(database.Sprint), args.Error(1)
}

var testNow = time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)

func newTestRouter(q *MockQuerier, loc *time.Location) http.Handler {
	h := &Handler{
		db:       q,
		scope:    database.Scope{ExcludedRepos: []string{"test-repo"}},
		location: loc,
		logger:   slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})),
		now:      func() time.Time { return testNow },
	}
	return h.routes()
}

func serve(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHealthCheck(t *testing.T) {
	rr := serve(t, newTestRouter(new(MockQuerier), time.UTC), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestGetCommits(t *testing.T) {
	t.Run("returns the latest commits", func(t *testing.T) {
		mockQ := new(MockQuerier)
		mockQ.On("GetCommitsByRepo", mock.Anything, database.GetCommitsByRepoParams{Repo: "acme/shop", Limit: 5}).
			Return([]database.Commit{{Sha: "a1", Repo: "acme/shop", Message: "SHOP-1 cart"}}, nil).Once()

		rr := serve(t, newTestRouter(mockQ, time.UTC), http.MethodGet, "/v1/repos/acme/shop/commits?limit=5", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		var got []database.Commit
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "a1", got[0].Sha)
		mockQ.AssertExpectations(t)
	})

	t.Run("rejects an invalid limit", func(t *testing.T) {
		mockQ := new(MockQuerier)

		rr := serve(t, newTestRouter(mockQ, time.UTC), http.MethodGet, "/v1/repos/acme/shop/commits?limit=abc", "")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockQ.AssertNotCalled(t, "GetCommitsByRepo", mock.Anything, mock.Anything)
	})

	t.Run("excluded repositories are not found", func(t *testing.T) {
		mockQ := new(MockQuerier)

		rr := serve(t, newTestRouter(mockQ, time.UTC), http.MethodGet, "/v1/repos/acme/test-repo/commits", "")

		assert.Equal(t, http.StatusNotFound, rr.Code)
		mockQ.AssertNotCalled(t, "GetCommitsByRepo", mock.Anything, mock.Anything)
	})

	t.Run("hides database errors", func(t *testing.T) {
		mockQ := new(MockQuerier)
		mockQ.On("GetCommitsByRepo", mock.Anything, mock.Anything).Return([]database.Commit(nil), errors.New("boom")).Once()

		rr := serve(t, newTestRouter(mockQ, time.UTC), http.MethodGet, "/v1/repos/acme/shop/commits", "")

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.JSONEq(t, `{"error":"Internal server error"}`, rr.Body.String())
	})
}

func TestGetBranches(t *testing.T) {
	mockQ := new(MockQuerier)
	mockQ.On("GetBranchesByRepo", mock.Anything, "acme/shop").Return([]database.Branch{
		{Repo: "acme/shop", Name: "feature/SHOP-1", IsActive: true, PullRequest: []byte(`{"id":12,"state":"OPEN"}`)},
		{Repo: "acme/shop", Name: "feature/old", IsActive: false},
	}, nil)
	router := newTestRouter(mockQ, time.UTC)

	rr := serve(t, router, http.MethodGet, "/v1/repos/acme/shop/branches?active=true", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	var got []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "feature/SHOP-1", got[0]["name"])
	assert.Equal(t, map[string]any{"id": float64(12), "state": "OPEN"}, got[0]["pull_request"])

	rr = serve(t, router, http.MethodGet, "/v1/repos/acme/shop/branches", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Len(t, got, 2, "gone branches are listed by default")
}

func TestGetReviewerLeaderboard(t *testing.T) {
	mockQ := new(MockQuerier)
	mockQ.On("GetReviewerLeaderboard", mock.Anything, database.GetReviewerLeaderboardParams{
		Repo: "", Since: testNow.AddDate(0, 0, -7), Limit: 3,
	}).Return([]database.GetReviewerLeaderboardRow{{Actor: "bob", Approvals: 4, PullRequests: 4}}, nil).Once()

	rr := serve(t, newTestRouter(mockQ, time.UTC), http.MethodGet, "/v1/stats/reviewers?days=7&limit=3", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[{"actor":"bob","approvals":4,"comments":0,"change_requests":0,"pull_requests":4}]`, rr.Body.String())
	mockQ.AssertExpectations(t)
}

func TestGetTicketSummaries(t *testing.T) {
	created := time.Date(2024, 7, 9, 8, 0, 0, 0, time.UTC)

	t.Run("returns the heads with decoded commit sets", func(t *testing.T) {
		mockQ := new(MockQuerier)
		mockQ.On("GetTicketSummaryHeads", mock.Anything, "SHOP-1").Return([]database.TicketSummary{{
			ID: 4, JiraKey: "SHOP-1", Repo: "acme/shop", SummaryText: "Cart added.", CommitShas: `["a1","b2"]`,
			PreviousID: pgtype.Int8{Int64: 3, Valid: true}, Generation: "extend", CreatedAt: created,
		}}, nil).Once()

		rr := serve(t, newTestRouter(mockQ, time.UTC), http.MethodGet, "/v1/tickets/shop-1/summaries", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		var got []summaryResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, []string{"a1", "b2"}, got[0].CommitSHAs)
		require.NotNil(t, got[0].PreviousID)
		assert.Equal(t, int64(3), *got[0].PreviousID)
	})

	t.Run("corrupt commit sets decode as empty", func(t *testing.T) {
		mockQ := new(MockQuerier)
		mockQ.On("GetTicketSummaryChain", mock.Anything, database.GetTicketSummaryChainParams{JiraKey: "SHOP-1", Repo: "acme/shop", Limit: 20}).
			Return([]database.TicketSummary{{ID: 1, JiraKey: "SHOP-1", Repo: "acme/shop", CommitShas: "not json", Generation: "full"}}, nil).Once()

		rr := serve(t, newTestRouter(mockQ, time.UTC), http.MethodGet, "/v1/tickets/SHOP-1/summaries/acme/shop", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		var got []summaryResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Empty(t, got[0].CommitSHAs)
		assert.Nil(t, got[0].PreviousID)
	})

	t.Run("unknown ticket", func(t *testing.T) {
		mockQ := new(MockQuerier)
		mockQ.On("GetTicketSummaryHeads", mock.Anything, "SHOP-9").Return([]database.TicketSummary{}, nil).Once()

		rr := serve(t, newTestRouter(mockQ, time.UTC), http.MethodGet, "/v1/tickets/SHOP-9/summaries", "")

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestPutSprint(t *testing.T) {
	t.Run("stores a normalized sprint", func(t *testing.T) {
		mockQ := new(MockQuerier)
		params := database.UpsertSprintParams{
			ID:         "s-7",
			Name:       "Sprint 7",
			StartDate:  time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
			EndDate:    time.Date(2024, 7, 14, 0, 0, 0, 0, time.UTC),
			TicketKeys: []string{"SHOP-1", "SHOP-2"},
		}
		mockQ.On("UpsertSprint", mock.Anything, params).Return(database.Sprint{
			ID: "s-7", Name: "Sprint 7", StartDate: params.StartDate, EndDate: params.EndDate, TicketKeys: params.TicketKeys,
		}, nil).Once()

		rr := serve(t, newTestRouter(mockQ, time.UTC), http.MethodPut, "/v1/sprints/s-7",
			`{"name":"Sprint 7","start_date":"2024-07-01","end_date":"2024-07-14","ticket_keys":["shop-2"," SHOP-1","SHOP-2",""]}`)

		assert.Equal(t, http.StatusOK, rr.Code)
		mockQ.AssertExpectations(t)
	})

	for name, body := range map[string]string{
		"malformed body":   `{`,
		"bad start date":   `{"start_date":"07/01/2024","end_date":"2024-07-14"}`,
		"end before start": `{"start_date":"2024-07-14","end_date":"2024-07-01"}`,
		"missing end date": `{"start_date":"2024-07-14"}`,
	} {
		t.Run(name, func(t *testing.T) {
			mockQ := new(MockQuerier)

			rr := serve(t, newTestRouter(mockQ, time.UTC), http.MethodPut, "/v1/sprints/s-7", body)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			mockQ.AssertNotCalled(t, "UpsertSprint", mock.Anything, mock.Anything)
		})
	}
}

func TestGetBurndown(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	day := func(d, h int) time.Time { return time.Date(2024, 7, d, h, 0, 0, 0, berlin) }
	sprint := database.Sprint{
		ID: "s-7", Name: "Sprint 7",
		StartDate:  time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2024, 7, 3, 0, 0, 0, 0, time.UTC),
		TicketKeys: []string{"SHOP-1", "SHOP-2"},
	}

	t.Run("reconstructs the series in the configured zone", func(t *testing.T) {
		mockQ := new(MockQuerier)
		mockQ.On("GetSprint", mock.Anything, "s-7").Return(sprint, nil).Once()
		mockQ.On("GetStatusChangesByTicketKeys", mock.Anything, []string{"SHOP-1", "SHOP-2"}).Return([]database.TicketStatusChange{
			{JiraKey: "SHOP-1", ChangedAt: day(2, 10), FromStatus: "To Do", ToStatus: "In Progress"},
			{JiraKey: "SHOP-1", ChangedAt: day(3, 16), FromStatus: "In Progress", ToStatus: "Done"},
		}, nil).Once()
		mockQ.On("GetCommitTimesForTicketBranches", mock.Anything, database.GetCommitTimesForTicketBranchesParams{
			TicketKeys: []string{"SHOP-1", "SHOP-2"}, From: day(1, 0), To: day(4, 0),
		}).Return([]time.Time{day(2, 11), day(2, 12)}, nil).Once()

		rr := serve(t, newTestRouter(mockQ, berlin), http.MethodGet, "/v1/sprints/s-7/burndown", "")

		require.Equal(t, http.StatusOK, rr.Code)
		var got struct {
			Timezone string         `json:"timezone"`
			Days     []burndown.Day `json:"days"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, "Europe/Berlin", got.Timezone)
		assert.Equal(t, []burndown.Day{
			{Date: "2024-07-01", Todo: 2, Remaining: 2, Total: 2},
			{Date: "2024-07-02", InProgress: 1, Todo: 1, Remaining: 2, Total: 2, Commits: 2},
			{Date: "2024-07-03", Done: 1, Todo: 1, Remaining: 1, Total: 2},
		}, got.Days)
		mockQ.AssertExpectations(t)
	})

	t.Run("unknown sprint", func(t *testing.T) {
		mockQ := new(MockQuerier)
		mockQ.On("GetSprint", mock.Anything, "nope").Return(database.Sprint{}, pgx.ErrNoRows).Once()

		rr := serve(t, newTestRouter(mockQ, time.UTC), http.MethodGet, "/v1/sprints/nope/burndown", "")

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestGetReport(t *testing.T) {
	mockQ := new(MockQuerier)
	since := testNow.AddDate(0, 0, -30)
	mockQ.On("GetTopNCommitAuthors", mock.Anything, database.GetTopNCommitAuthorsParams{Repo: "acme/shop", Limit: 10}).
		Return([]database.GetTopNCommitAuthorsRow{{AuthorName: "Ann", AuthorEmail: "ann@acme.io", CommitCount: 9}}, nil).Once()
	mockQ.On("GetReviewerLeaderboard", mock.Anything, database.GetReviewerLeaderboardParams{Repo: "acme/shop", Since: since, Limit: 10}).
		Return([]database.GetReviewerLeaderboardRow{{Actor: "bob", Approvals: 2, PullRequests: 2}}, nil).Once()
	computed := pgtype.Timestamptz{Time: testNow, Valid: true}
	mockQ.On("GetPullRequestsByRepo", mock.Anything, "acme/shop").Return([]database.PullRequest{
		{ID: 1, State: "MERGED", PrUpdatedAt: testNow, TimeToFirstReview: pgtype.Int4{Int32: 30, Valid: true},
			TimeToMerge: pgtype.Int4{Int32: 120, Valid: true}, ReviewRounds: 1, MetricsComputedAt: computed},
		{ID: 2, State: "OPEN", PrUpdatedAt: testNow, TimeToFirstReview: pgtype.Int4{Int32: 90, Valid: true}, ReviewRounds: 0, MetricsComputedAt: computed},
		{ID: 3, State: "OPEN", PrUpdatedAt: testNow},
		{ID: 4, State: "MERGED", PrUpdatedAt: since.Add(-time.Hour), ReviewRounds: 5, MetricsComputedAt: computed},
	}, nil).Once()

	rr := serve(t, newTestRouter(mockQ, time.UTC), http.MethodGet, "/v1/repos/acme/shop/report", "")

	require.Equal(t, http.StatusOK, rr.Code)
	var got reportResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "acme/shop", got.Repo)
	require.Len(t, got.TopCommitters, 1)
	require.Len(t, got.Reviewers, 1)
	assert.Equal(t, 3, got.Review.PullRequests)
	assert.Equal(t, 1, got.Review.Merged)
	assert.Equal(t, 2, got.Review.Open)
	require.NotNil(t, got.Review.AvgTimeToFirstReview)
	assert.InDelta(t, 60.0, *got.Review.AvgTimeToFirstReview, 0.001)
	require.NotNil(t, got.Review.AvgTimeToMerge)
	assert.InDelta(t, 120.0, *got.Review.AvgTimeToMerge, 0.001)
	assert.InDelta(t, 0.5, got.Review.AvgReviewRounds, 0.001)
	mockQ.AssertExpectations(t)
}

func TestGetReport_FailsWhenAnyReadFails(t *testing.T) {
	mockQ := new(MockQuerier)
	mockQ.On("GetTopNCommitAuthors", mock.Anything, mock.Anything).Return([]database.GetTopNCommitAuthorsRow{}, nil).Maybe()
	mockQ.On("GetReviewerLeaderboard", mock.Anything, mock.Anything).Return([]database.GetReviewerLeaderboardRow(nil), errors.New("boom")).Once()
	mockQ.On("GetPullRequestsByRepo", mock.Anything, mock.Anything).Return([]database.PullRequest{}, nil).Maybe()

	rr := serve(t, newTestRouter(mockQ, time.UTC), http.MethodGet, "/v1/repos/acme/shop/report", "")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
