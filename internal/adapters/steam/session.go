package steam

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/repx/internal/domain"
	"github.com/bnema/repx/internal/ports"
)

// Session is a logged-in Steam community web session.
type Session struct {
	communityBaseURL string
	httpClient       *http.Client
	requestTimeout   func(context.Context) time.Duration

	steamID     string
	accessToken string
	sessionID   string
	identity    domain.Identity
}

var _ ports.Session = (*Session)(nil)

type profileInfo struct {
	Nickname  string
	AvatarURL string
}

type profileXML struct {
	XMLName    xml.Name `xml:"profile"`
	SteamID64  string   `xml:"steamID64"`
	SteamID    string   `xml:"steamID"`
	AvatarFull string   `xml:"avatarFull"`
}

type commentResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Session) Identity() domain.Identity {
	return s.identity
}

// PostComment posts text on the target profile's comment thread and
// classifies the result.
func (s *Session) PostComment(ctx context.Context, targetSteamID, text string) domain.Outcome {
	values := url.Values{}
	values.Set("comment", text)
	values.Set("count", "6")
	values.Set("sessionid", s.sessionID)
	values.Set("feature2", "-1")

	path := "/comment/Profile/post/" + url.PathEscape(targetSteamID) + "/-1/"
	status, body, err := s.do(ctx, http.MethodPost, path, values)
	if err != nil {
		return classifyTransportError(err)
	}
	if status == http.StatusTooManyRequests {
		return domain.Failed(domain.OutcomeRateLimited, fmt.Errorf("post comment: status %d", status))
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return domain.Failed(domain.OutcomeFailed, fmt.Errorf("post comment: status %d", status))
	}

	var payload commentResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.Failed(domain.OutcomeFailed, fmt.Errorf("decode comment response: %w", err))
	}
	if payload.Success {
		return domain.Succeeded()
	}

	message := strings.TrimSpace(payload.Error)
	if message == "" {
		message = "comment rejected"
	}
	return classifyCommentError(message)
}

func (s *Session) Logout(ctx context.Context) error {
	values := url.Values{}
	values.Set("sessionid", s.sessionID)

	status, _, err := s.do(ctx, http.MethodPost, "/login/logout/", values)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if status >= http.StatusBadRequest {
		return fmt.Errorf("logout: status %d", status)
	}

	return nil
}

func (s *Session) fetchProfile(ctx context.Context) (profileInfo, error) {
	status, body, err := s.do(ctx, http.MethodGet, "/profiles/"+url.PathEscape(s.steamID)+"/?xml=1", nil)
	if err != nil {
		return profileInfo{}, err
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return profileInfo{}, fmt.Errorf("profile: status %d", status)
	}

	var payload profileXML
	if err := xml.Unmarshal(body, &payload); err != nil {
		return profileInfo{}, fmt.Errorf("decode profile: %w", err)
	}
	if payload.SteamID64 != "" && payload.SteamID64 != s.steamID {
		return profileInfo{}, errors.New("profile belongs to another account")
	}

	return profileInfo{
		Nickname:  strings.TrimSpace(payload.SteamID),
		AvatarURL: strings.TrimSpace(payload.AvatarFull),
	}, nil
}

func (s *Session) do(ctx context.Context, method string, path string, values url.Values) (int, []byte, error) {
	endpoint, err := buildURL(s.communityBaseURL, path)
	if err != nil {
		return 0, nil, err
	}

	var body io.Reader
	if values != nil {
		body = strings.NewReader(values.Encode())
	}

	requestCtx, cancel := requestContext(ctx, s.requestTimeout(ctx))
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, method, endpoint, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}
	req.AddCookie(&http.Cookie{Name: "steamLoginSecure", Value: s.steamID + "%7C%7C" + s.accessToken})
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: s.sessionID})

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	return resp.StatusCode, data, nil
}
