// Package rep4rep talks to the Rep4Rep public API, the task service that hands
// out comment tasks and records their completion.
package rep4rep

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/repx/internal/domain"
	"github.com/bnema/repx/internal/ports"
)

const (
	DefaultBaseURL   = "https://rep4rep.com/pub-api"
	maxResponseBytes = 4 << 20
)

// APIError is an error the service reported in its response body.
type APIError struct {
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rep4rep %s: %s", e.Path, e.Message)
}

// Client talks to the Rep4Rep public API. Settings, when set, supplies the
// request timeout on every call and takes precedence over RequestTimeout.
type Client struct {
	BaseURL        string
	APIToken       string
	HTTPClient     *http.Client
	Settings       ports.SettingsSource
	RequestTimeout time.Duration
}

var _ ports.TaskService = (*Client)(nil)

type profilePayload struct {
	ID      flexString `json:"id"`
	SteamID flexString `json:"steamId"`
}

type taskPayload struct {
	TaskID               flexString `json:"taskId"`
	TargetSteamProfileID flexString `json:"targetSteamProfileId"`
	RequiredCommentText  string     `json:"requiredCommentText"`
	RequiredCommentID    flexString `json:"requiredCommentId"`
}

func (c *Client) ListProfiles(ctx context.Context) ([]domain.ServiceProfile, error) {
	var payload []profilePayload
	if err := c.do(ctx, http.MethodGet, "/user/steamprofiles", nil, &payload); err != nil {
		return nil, err
	}

	profiles := make([]domain.ServiceProfile, 0, len(payload))
	for _, p := range payload {
		profiles = append(profiles, domain.ServiceProfile{ID: string(p.ID), SteamID: string(p.SteamID)})
	}

	return profiles, nil
}

func (c *Client) RegisterProfile(ctx context.Context, steamID string) error {
	params := url.Values{}
	params.Set("steamProfile", steamID)

	return c.do(ctx, http.MethodPost, "/user/steamprofiles/add", params, nil)
}

// ListTasks returns the open tasks for one registered profile. A response
// that is not a list means there is no work.
func (c *Client) ListTasks(ctx context.Context, profileID string) ([]domain.Task, error) {
	params := url.Values{}
	params.Set("steamProfile", profileID)

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/tasks", params, &raw); err != nil {
		return nil, err
	}

	var payload []taskPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil
	}

	tasks := make([]domain.Task, 0, len(payload))
	for _, p := range payload {
		tasks = append(tasks, domain.Task{
			ID:                string(p.TaskID),
			TargetSteamID:     string(p.TargetSteamProfileID),
			RequiredText:      p.RequiredCommentText,
			RequiredCommentID: string(p.RequiredCommentID),
		})
	}

	return tasks, nil
}

func (c *Client) CompleteTask(ctx context.Context, taskID, commentID, profileID string) error {
	params := url.Values{}
	params.Set("taskId", taskID)
	params.Set("commentId", commentID)
	params.Set("authorSteamProfileId", profileID)

	return c.do(ctx, http.MethodPost, "/tasks/complete", params, nil)
}

// do sends params with the API token, as a query string for GET and a form
// body otherwise. A body carrying an "error" field is returned as *APIError.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, out any) error {
	if c.APIToken == "" {
		return errors.New("rep4rep api token is not configured")
	}

	endpoint, err := c.endpoint(path)
	if err != nil {
		return err
	}

	values := url.Values{}
	values.Set("apiToken", c.APIToken)
	for key, vals := range params {
		for _, v := range vals {
			values.Add(key, v)
		}
	}

	var body io.Reader
	if method == http.MethodGet {
		endpoint += "?" + values.Encode()
	} else {
		body = strings.NewReader(values.Encode())
	}

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("rep4rep %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("rep4rep %s: read response: %w", path, err)
	}

	if message := errorMessage(data); message != "" {
		return &APIError{Path: path, Status: resp.StatusCode, Message: message}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &APIError{Path: path, Status: resp.StatusCode, Message: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("rep4rep %s: decode response: %w", path, err)
	}

	return nil
}

func (c *Client) endpoint(path string) (string, error) {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse rep4rep base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("rep4rep base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("rep4rep base url host is required")
	}

	return strings.TrimRight(parsed.String(), "/") + path, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	timeout := c.RequestTimeout
	if c.Settings != nil {
		timeout = c.Settings.Current(ctx).RequestTimeout
	}
	if timeout <= 0 {
		timeout = domain.DefaultRequestTimeout
	}

	return context.WithTimeout(ctx, timeout)
}

func errorMessage(data []byte) string {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ""
	}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil || len(envelope.Error) == 0 {
		return ""
	}

	var message string
	if err := json.Unmarshal(envelope.Error, &message); err == nil {
		return message
	}
	if string(envelope.Error) == "false" || string(envelope.Error) == "null" {
		return ""
	}

	return string(envelope.Error)
}

// flexString accepts both JSON strings and numbers; the service is not
// consistent about id types.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if string(trimmed) == "null" {
		*f = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", trimmed)
	}
	if i, err := n.Int64(); err == nil {
		*f = flexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexString(n.String())
	return nil
}
