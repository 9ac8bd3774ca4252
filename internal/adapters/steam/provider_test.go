package steam

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bnema/repx/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSteamID = "76561198000000001"

var testNow = time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type inMemorySecrets struct {
	mu     sync.Mutex
	values map[string]string
	putErr error
}

func (s *inMemorySecrets) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	if !ok {
		return "", fmt.Errorf("%q: %w", key, domain.ErrSecretNotFound)
	}
	return value, nil
}

func (s *inMemorySecrets) Put(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.values[key] = value
	return nil
}

func (s *inMemorySecrets) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func testToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"EdDSA","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"iss":"steam","sub":%q,"exp":%d}`, sub, exp.Unix())))
	return header + "." + payload + ".signature"
}

type steamServer struct {
	rotated     string
	commentBody string
	status      int
	posted      chan map[string]string
}

func (s *steamServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == generateAccessTokenPath:
			require.NoError(t, r.ParseForm())
			assert.Equal(t, testSteamID, r.PostForm.Get("steamid"))
			assert.Equal(t, "1", r.PostForm.Get("renewal_type"))
			_, _ = fmt.Fprintf(w, `{"response":{"access_token":"access-1","refresh_token":%q}}`, s.rotated)
		case r.URL.Path == "/profiles/"+testSteamID+"/":
			assert.Equal(t, "1", r.URL.Query().Get("xml"))
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><profile><steamID64>`+testSteamID+`</steamID64><steamID><![CDATA[alice]]></steamID><avatarFull><![CDATA[https://avatars.example/a_full.jpg]]></avatarFull></profile>`)
		case r.URL.Path == "/comment/Profile/post/76561198000000009/-1/":
			require.NoError(t, r.ParseForm())
			cookie, err := r.Cookie("steamLoginSecure")
			require.NoError(t, err)
			s.posted <- map[string]string{
				"comment": r.PostForm.Get("comment"),
				"session": r.PostForm.Get("sessionid"),
				"cookie":  cookie.Value,
			}
			if s.status != 0 {
				w.WriteHeader(s.status)
				return
			}
			_, _ = io.WriteString(w, s.commentBody)
		case r.URL.Path == "/login/logout/":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}
}

func newTestProvider(t *testing.T, server *steamServer, secrets *inMemorySecrets) *Provider {
	t.Helper()

	if server.posted == nil {
		server.posted = make(chan map[string]string, 1)
	}
	httpServer := httptest.NewServer(server.handler(t))
	t.Cleanup(httpServer.Close)

	return &Provider{
		APIBaseURL:       httpServer.URL,
		CommunityBaseURL: httpServer.URL,
		Secrets:          secrets,
		HTTPClient:       httpServer.Client(),
		Clock:            fixedClock{now: testNow},
	}
}

func TestAcquireBuildsIdentityAndPersistsRotatedToken(t *testing.T) {
	token := testToken(t, testSteamID, testNow.Add(24*time.Hour))
	secrets := &inMemorySecrets{values: map[string]string{"alice/refresh_token": token}}
	provider := newTestProvider(t, &steamServer{rotated: "rotated-token"}, secrets)

	session, err := provider.Acquire(context.Background(), domain.Account{ID: "alice"})

	require.NoError(t, err)
	assert.Equal(t, domain.Identity{
		SteamID:   testSteamID,
		Nickname:  "alice",
		AvatarURL: "https://avatars.example/a_full.jpg",
	}, session.Identity())
	assert.Equal(t, "rotated-token", secrets.values["alice/refresh_token"])
	require.NoError(t, session.Logout(context.Background()))
}

func TestAcquireKeepsTokenWhenNotRotated(t *testing.T) {
	token := testToken(t, testSteamID, testNow.Add(24*time.Hour))
	secrets := &inMemorySecrets{values: map[string]string{"steam/alice": token}}
	provider := newTestProvider(t, &steamServer{}, secrets)

	_, err := provider.Acquire(context.Background(), domain.Account{
		ID:          "alice",
		Credentials: domain.Credentials{RefreshTokenRef: "steam/alice"},
	})

	require.NoError(t, err)
	assert.Equal(t, token, secrets.values["steam/alice"])
}

func TestAcquireSurvivesRotatedTokenWriteFailure(t *testing.T) {
	token := testToken(t, testSteamID, testNow.Add(24*time.Hour))
	secrets := &inMemorySecrets{values: map[string]string{"alice/refresh_token": token}, putErr: errors.New("read-only")}
	provider := newTestProvider(t, &steamServer{rotated: "rotated-token"}, secrets)

	_, err := provider.Acquire(context.Background(), domain.Account{ID: "alice"})

	require.NoError(t, err)
}

func TestAcquireWithoutTokenIsNoRefreshToken(t *testing.T) {
	provider := newTestProvider(t, &steamServer{}, &inMemorySecrets{values: map[string]string{}})

	_, err := provider.Acquire(context.Background(), domain.Account{ID: "alice"})

	require.ErrorIs(t, err, domain.ErrNoRefreshToken)
}

func TestAcquireRejectsExpiredToken(t *testing.T) {
	token := testToken(t, testSteamID, testNow.Add(-time.Minute))
	provider := newTestProvider(t, &steamServer{}, &inMemorySecrets{values: map[string]string{"alice/refresh_token": token}})

	_, err := provider.Acquire(context.Background(), domain.Account{ID: "alice"})

	require.ErrorIs(t, err, domain.ErrNoRefreshToken)
	assert.ErrorContains(t, err, "expired")
}

func TestAcquireRejectsMalformedToken(t *testing.T) {
	provider := newTestProvider(t, &steamServer{}, &inMemorySecrets{values: map[string]string{"alice/refresh_token": "not-a-jwt"}})

	_, err := provider.Acquire(context.Background(), domain.Account{ID: "alice"})

	require.Error(t, err)
	assert.ErrorContains(t, err, "not a jwt")
}

func TestPostCommentOutcomes(t *testing.T) {
	testCases := []struct {
		name   string
		body   string
		status int
		want   domain.OutcomeKind
	}{
		{name: "success", body: `{"success":true,"comments_html":""}`, want: domain.OutcomeSuccess},
		{name: "posting too frequently", body: `{"success":false,"error":"You've been posting too frequently, and can't make another post right now"}`, want: domain.OutcomeRateLimited},
		{name: "restricted profile", body: `{"success":false,"error":"The settings on this account do not allow you to add comments."}`, want: domain.OutcomeRestricted},
		{name: "other rejection", body: `{"success":false,"error":"There was a problem posting your comment."}`, want: domain.OutcomeFailed},
		{name: "http 429", status: http.StatusTooManyRequests, want: domain.OutcomeRateLimited},
		{name: "http 500", status: http.StatusInternalServerError, want: domain.OutcomeFailed},
		{name: "not json", body: `<html>`, want: domain.OutcomeFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			token := testToken(t, testSteamID, testNow.Add(24*time.Hour))
			server := &steamServer{commentBody: tc.body, status: tc.status}
			provider := newTestProvider(t, server, &inMemorySecrets{values: map[string]string{"alice/refresh_token": token}})

			session, err := provider.Acquire(context.Background(), domain.Account{ID: "alice"})
			require.NoError(t, err)

			outcome := session.PostComment(context.Background(), "76561198000000009", "+rep great trader")

			assert.Equal(t, tc.want, outcome.Kind)
			posted := <-server.posted
			assert.Equal(t, "+rep great trader", posted["comment"])
			assert.NotEmpty(t, posted["session"])
			assert.Equal(t, testSteamID+"%7C%7Caccess-1", posted["cookie"])
		})
	}
}

type countingSettings struct {
	mu      sync.Mutex
	reads   int
	timeout time.Duration
}

func (s *countingSettings) Current(_ context.Context) domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	settings := domain.DefaultSettings()
	settings.RequestTimeout = s.timeout
	return settings
}

func (s *countingSettings) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func TestSessionReadsRequestTimeoutPerRequest(t *testing.T) {
	token := testToken(t, testSteamID, testNow.Add(24*time.Hour))
	server := &steamServer{commentBody: `{"success":true}`}
	provider := newTestProvider(t, server, &inMemorySecrets{values: map[string]string{"alice/refresh_token": token}})
	settings := &countingSettings{timeout: 5 * time.Second}
	provider.Settings = settings
	provider.RequestTimeout = time.Nanosecond

	session, err := provider.Acquire(context.Background(), domain.Account{ID: "alice"})
	require.NoError(t, err)
	afterLogin := settings.count()
	assert.GreaterOrEqual(t, afterLogin, 1)

	outcome := session.PostComment(context.Background(), "76561198000000009", "+rep")
	<-server.posted

	assert.Equal(t, domain.OutcomeSuccess, outcome.Kind)
	assert.Equal(t, afterLogin+1, settings.count())
}

func TestClassifyTransportError(t *testing.T) {
	assert.Equal(t, domain.OutcomeTransient, classifyTransportError(context.DeadlineExceeded).Kind)
	assert.Equal(t, domain.OutcomeTransient, classifyTransportError(errors.New("getaddrinfo EAI_AGAIN steamcommunity.com")).Kind)
	assert.Equal(t, domain.OutcomeFailed, classifyTransportError(errors.New("unsupported protocol scheme")).Kind)
}

func TestParseTokenClaims(t *testing.T) {
	claims, err := parseTokenClaims(testToken(t, testSteamID, testNow))

	require.NoError(t, err)
	assert.Equal(t, testSteamID, claims.Subject)
	assert.Equal(t, testNow, claims.expiry())
}
