// Package steam opens Steam community web sessions from stored refresh tokens
// and posts profile comments through them.
package steam

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bnema/repx/internal/domain"
	"github.com/bnema/repx/internal/logging"
	"github.com/bnema/repx/internal/ports"
	"github.com/sirupsen/logrus"
)

const (
	DefaultAPIBaseURL       = "https://api.steampowered.com"
	DefaultCommunityBaseURL = "https://steamcommunity.com"

	maxResponseBytes = 1 << 20
)

// Provider implements ports.SessionProvider. Secrets holds one refresh token
// per account; rotated tokens are written back to it. When Settings is set the
// request timeout is read from it on every request, otherwise RequestTimeout
// applies.
type Provider struct {
	APIBaseURL       string
	CommunityBaseURL string
	Secrets          ports.SecretStore
	HTTPClient       *http.Client
	Settings         ports.SettingsSource
	RequestTimeout   time.Duration
	Clock            ports.Clock
	Log              logrus.FieldLogger
}

var _ ports.SessionProvider = (*Provider)(nil)

func (p *Provider) Acquire(ctx context.Context, account domain.Account) (ports.Session, error) {
	if p.Secrets == nil {
		return nil, errors.New("steam provider has no secret store")
	}

	key := account.RefreshTokenKey()
	refreshToken, err := p.Secrets.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrSecretNotFound) {
			return nil, fmt.Errorf("%s: %w", account.ID, domain.ErrNoRefreshToken)
		}
		return nil, fmt.Errorf("read refresh token for %s: %w", account.ID, err)
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("%s: %w", account.ID, domain.ErrNoRefreshToken)
	}

	claims, err := parseTokenClaims(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", account.ID, err)
	}
	if expiry := claims.expiry(); !expiry.IsZero() && !expiry.After(p.now()) {
		return nil, fmt.Errorf("%s: refresh token expired at %s: %w", account.ID, expiry.Format(time.RFC3339), domain.ErrNoRefreshToken)
	}

	tokens, err := p.generateAccessToken(ctx, refreshToken, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("login %s: %w", account.ID, err)
	}

	log := p.logger().WithField(logging.FieldAccount, account.ID)
	if tokens.RefreshToken != "" && tokens.RefreshToken != refreshToken {
		if err := p.Secrets.Put(ctx, key, tokens.RefreshToken); err != nil {
			log.WithError(err).Warn("Could not persist rotated refresh token")
		} else {
			log.Info("Refresh token rotated")
		}
	}

	sessionID, err := newSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	session := &Session{
		communityBaseURL: p.communityBaseURL(),
		httpClient:       p.httpClient(),
		requestTimeout:   p.requestTimeout,
		steamID:          claims.Subject,
		accessToken:      tokens.AccessToken,
		sessionID:        sessionID,
	}

	// Persona lookup failures leave the identity with just the SteamID.
	profile, err := session.fetchProfile(ctx)
	if err != nil {
		log.WithError(err).Debug("Profile lookup failed")
	}
	session.identity = domain.Identity{
		SteamID:   claims.Subject,
		Nickname:  profile.Nickname,
		AvatarURL: profile.AvatarURL,
	}

	return session, nil
}

func (p *Provider) apiBaseURL() string {
	if p.APIBaseURL != "" {
		return p.APIBaseURL
	}
	return DefaultAPIBaseURL
}

func (p *Provider) communityBaseURL() string {
	if p.CommunityBaseURL != "" {
		return p.CommunityBaseURL
	}
	return DefaultCommunityBaseURL
}

func (p *Provider) httpClient() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}

func (p *Provider) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return requestContext(ctx, p.requestTimeout(ctx))
}

func (p *Provider) requestTimeout(ctx context.Context) time.Duration {
	if p.Settings != nil {
		return p.Settings.Current(ctx).RequestTimeout
	}
	return p.RequestTimeout
}

func (p *Provider) now() time.Time {
	if p.Clock != nil {
		return p.Clock.Now()
	}
	return time.Now()
}

func (p *Provider) logger() logrus.FieldLogger {
	if p.Log != nil {
		return p.Log
	}
	return logging.Discard()
}

func requestContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	if timeout <= 0 {
		timeout = domain.DefaultRequestTimeout
	}

	return context.WithTimeout(ctx, timeout)
}

func newSessionID() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
