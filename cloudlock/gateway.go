package cloudlock

import (
	"context"
	"time"

	"github.com/shimmeringbee/logwrap"
)

const tokenRefreshMargin = 24 * time.Hour

// Gateway ties a Session to its persisted Config: it seeds the session from
// cached state, authenticates when no token is available and keeps the token
// fresh.
type Gateway struct {
	session *Session
	config  *Config
	logger  logwrap.Logger
}

func NewGateway(session *Session, config *Config, logger logwrap.Logger) *Gateway {
	return &Gateway{
		session: session,
		config:  config,
		logger:  logger,
	}
}

func (g *Gateway) Session() *Session {
	return g.session
}

// Setup seeds the session with any cached access token.
func (g *Gateway) Setup(ctx context.Context) {
	if token, expires := g.config.AccessToken(); token != "" {
		g.logger.Info(ctx, "Using cached access token.", logwrap.Datum("expiresAt", expires.Format(time.RFC3339)))
		g.session.SetAccessToken(token, expires)
	}
}

// Authenticate ensures the session holds an access token, exchanging
// credentials where no usable cached token exists. On success the token is
// cached and the password scrubbed from persistence.
func (g *Gateway) Authenticate(ctx context.Context) error {
	if g.session.AccessToken() != "" && !g.session.TokenExpiresWithin(0) {
		return nil
	}

	result, err := g.session.Authenticate(ctx, g.config.Email(), g.config.Password())
	if err != nil {
		return err
	}

	g.config.SetAccessToken(result.AccessToken, result.ExpiresAt)
	g.logger.Info(ctx, "Authenticated with cloud API.", logwrap.Datum("expiresAt", result.ExpiresAt.Format(time.RFC3339)))

	return nil
}

// RefreshAccessTokenIfNeeded refreshes tokens approaching expiry and caches
// the replacement.
func (g *Gateway) RefreshAccessTokenIfNeeded(ctx context.Context) error {
	if !g.session.TokenExpiresWithin(tokenRefreshMargin) {
		return nil
	}

	result, err := g.session.RefreshAccessToken(ctx)
	if err != nil {
		return err
	}

	g.config.SetAccessToken(result.AccessToken, result.ExpiresAt)
	g.logger.Info(ctx, "Refreshed access token.", logwrap.Datum("expiresAt", result.ExpiresAt.Format(time.RFC3339)))

	return nil
}
