package cloudlock

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/shimmeringbee/persistence"
)

const EmailKey = "Email"
const PasswordKey = "Password"
const InstallIdKey = "InstallID"
const AccessTokenKey = "AccessToken"
const AccessTokenExpiresKey = "AccessTokenExpires"

// Config is the persisted state of one cloud account: credentials, the
// per install identifier the API requires, and the cached access token.
// The password is scrubbed from persistence once a token has been cached.
type Config struct {
	s persistence.Section
	m sync.RWMutex
}

func NewConfig(s persistence.Section) *Config {
	return &Config{s: s}
}

func (c *Config) Email() string {
	c.m.RLock()
	defer c.m.RUnlock()

	v, _ := c.s.String(EmailKey)
	return v
}

func (c *Config) Password() string {
	c.m.RLock()
	defer c.m.RUnlock()

	v, _ := c.s.String(PasswordKey)
	return v
}

// InstallId returns the persisted install identifier, generating and
// persisting one on first use.
func (c *Config) InstallId() string {
	c.m.Lock()
	defer c.m.Unlock()

	if v, ok := c.s.String(InstallIdKey); ok {
		return v
	}

	raw := make([]byte, 16)
	_, _ = rand.Read(raw)

	id := hex.EncodeToString(raw)
	c.s.Set(InstallIdKey, id)

	return id
}

func (c *Config) AccessToken() (string, time.Time) {
	c.m.RLock()
	defer c.m.RUnlock()

	token, ok := c.s.String(AccessTokenKey)
	if !ok {
		return "", time.Time{}
	}

	expires := time.Time{}
	if v, ok := c.s.String(AccessTokenExpiresKey); ok {
		expires, _ = time.Parse(time.RFC3339, v)
	}

	return token, expires
}

// SetAccessToken caches a token and drops the password from persisted
// settings, the token is sufficient for future sessions.
func (c *Config) SetAccessToken(token string, expires time.Time) {
	c.m.Lock()
	defer c.m.Unlock()

	c.s.Set(AccessTokenKey, token)
	c.s.Set(AccessTokenExpiresKey, expires.Format(time.RFC3339))
	c.s.Delete(PasswordKey)
}
