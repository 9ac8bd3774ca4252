package steam

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const generateAccessTokenPath = "/IAuthenticationService/GenerateAccessTokenForApp/v1/"

// renewalTypeAllow asks Steam to rotate the refresh token when it is close to
// expiry.
const renewalTypeAllow = "1"

type tokenClaims struct {
	Subject   string `json:"sub"`
	ExpiresAt int64  `json:"exp"`
}

func (c tokenClaims) expiry() time.Time {
	if c.ExpiresAt <= 0 {
		return time.Time{}
	}
	return time.Unix(c.ExpiresAt, 0).UTC()
}

// parseTokenClaims reads the unverified payload of a Steam JWT. The SteamID64
// of the owner is the "sub" claim.
func parseTokenClaims(token string) (tokenClaims, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return tokenClaims{}, errors.New("refresh token is not a jwt")
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return tokenClaims{}, fmt.Errorf("decode refresh token payload: %w", err)
	}

	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return tokenClaims{}, fmt.Errorf("decode refresh token claims: %w", err)
	}
	if claims.Subject == "" {
		return tokenClaims{}, errors.New("refresh token has no subject")
	}

	return claims, nil
}

type accessTokens struct {
	AccessToken  string
	RefreshToken string
}

type generateAccessTokenResponse struct {
	Response struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	} `json:"response"`
}

// generateAccessToken trades a refresh token for a web access token. The
// returned RefreshToken is empty unless Steam rotated it.
func (p *Provider) generateAccessToken(ctx context.Context, refreshToken string, steamID string) (accessTokens, error) {
	endpoint, err := buildURL(p.apiBaseURL(), generateAccessTokenPath)
	if err != nil {
		return accessTokens{}, err
	}

	values := url.Values{}
	values.Set("refresh_token", refreshToken)
	values.Set("steamid", steamID)
	values.Set("renewal_type", renewalTypeAllow)

	requestCtx, cancel := p.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return accessTokens{}, fmt.Errorf("create access token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return accessTokens{}, fmt.Errorf("request access token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return accessTokens{}, fmt.Errorf("request access token: status %d", resp.StatusCode)
	}

	var payload generateAccessTokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return accessTokens{}, fmt.Errorf("decode access token response: %w", err)
	}
	if payload.Response.AccessToken == "" {
		return accessTokens{}, errors.New("access token response missing access token")
	}

	return accessTokens{
		AccessToken:  payload.Response.AccessToken,
		RefreshToken: payload.Response.RefreshToken,
	}, nil
}

func buildURL(baseURL string, path string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse steam base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("steam base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("steam base url host is required")
	}

	return strings.TrimRight(parsed.String(), "/") + path, nil
}
