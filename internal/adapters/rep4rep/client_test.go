package rep4rep

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/bnema/repx/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &Client{BaseURL: server.URL + "/pub-api", APIToken: "token-123", HTTPClient: server.Client()}
}

func TestListProfilesSendsTokenAndDecodesMixedIDs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/pub-api/user/steamprofiles", r.URL.Path)
		assert.Equal(t, "token-123", r.URL.Query().Get("apiToken"))
		_, _ = io.WriteString(w, `[{"id":42,"steamId":"76561198000000001"},{"id":"43","steamId":76561198000000002}]`)
	})

	profiles, err := client.ListProfiles(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []domain.ServiceProfile{
		{ID: "42", SteamID: "76561198000000001"},
		{ID: "43", SteamID: "76561198000000002"},
	}, profiles)
}

func TestRegisterProfilePostsForm(t *testing.T) {
	var form url.Values
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/pub-api/user/steamprofiles/add", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		_, _ = io.WriteString(w, `{"success":true}`)
	})

	require.NoError(t, client.RegisterProfile(context.Background(), "76561198000000001"))
	assert.Equal(t, "76561198000000001", form.Get("steamProfile"))
	assert.Equal(t, "token-123", form.Get("apiToken"))
}

func TestListTasks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pub-api/tasks", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("steamProfile"))
		_, _ = io.WriteString(w, `[{"taskId":901,"targetSteamProfileId":"76561198000000009","requiredCommentText":"+rep great trader","requiredCommentId":55}]`)
	})

	tasks, err := client.ListTasks(context.Background(), "42")

	require.NoError(t, err)
	assert.Equal(t, []domain.Task{{
		ID:                "901",
		TargetSteamID:     "76561198000000009",
		RequiredText:      "+rep great trader",
		RequiredCommentID: "55",
	}}, tasks)
}

func TestListTasksNonListMeansNoWork(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"message":"nothing to do"}`)
	})

	tasks, err := client.ListTasks(context.Background(), "42")

	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCompleteTaskReportsErrorBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "901", r.PostForm.Get("taskId"))
		assert.Equal(t, "55", r.PostForm.Get("commentId"))
		assert.Equal(t, "42", r.PostForm.Get("authorSteamProfileId"))
		_, _ = io.WriteString(w, `{"error":"Task already completed"}`)
	})

	err := client.CompleteTask(context.Background(), "901", "55", "42")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "/tasks/complete", apiErr.Path)
	assert.Equal(t, "Task already completed", apiErr.Message)
}

func TestNonSuccessStatusIsAnError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.ListProfiles(context.Background())

	require.Error(t, err)
	assert.ErrorContains(t, err, "status 502")
}

func TestRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	client.RequestTimeout = 50 * time.Millisecond

	_, err := client.ListProfiles(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type stubSettings struct {
	reads   int
	timeout time.Duration
}

func (s *stubSettings) Current(_ context.Context) domain.Settings {
	s.reads++
	settings := domain.DefaultSettings()
	settings.RequestTimeout = s.timeout
	return settings
}

func TestRequestTimeoutFollowsSettings(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	settings := &stubSettings{timeout: 50 * time.Millisecond}
	client.Settings = settings
	client.RequestTimeout = time.Hour

	_, err := client.ListProfiles(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = client.ListProfiles(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, settings.reads)
}

func TestMissingTokenFailsFast(t *testing.T) {
	client := &Client{BaseURL: "https://example.invalid"}

	_, err := client.ListProfiles(context.Background())

	require.Error(t, err)
	assert.ErrorContains(t, err, "api token")
}
