package cloudlock

import (
	"testing"
	"time"

	"github.com/shimmeringbee/persistence/impl/memory"
	"github.com/stretchr/testify/assert"
)

func TestConfig(t *testing.T) {
	t.Run("reads credentials from the settings section", func(t *testing.T) {
		s := memory.New()
		s.Set(EmailKey, "user@example.org")
		s.Set(PasswordKey, "hunter2")

		c := NewConfig(s)

		assert.Equal(t, "user@example.org", c.Email())
		assert.Equal(t, "hunter2", c.Password())
	})

	t.Run("generates an install id once and persists it", func(t *testing.T) {
		s := memory.New()
		c := NewConfig(s)

		id := c.InstallId()
		assert.NotEmpty(t, id)
		assert.Equal(t, id, c.InstallId())

		persisted, ok := s.String(InstallIdKey)
		assert.True(t, ok)
		assert.Equal(t, id, persisted)
	})

	t.Run("caching an access token scrubs the password from persistence", func(t *testing.T) {
		s := memory.New()
		s.Set(EmailKey, "user@example.org")
		s.Set(PasswordKey, "hunter2")

		c := NewConfig(s)

		expires := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
		c.SetAccessToken("token-1", expires)

		_, passwordPresent := s.String(PasswordKey)
		assert.False(t, passwordPresent)

		token, tokenExpires := c.AccessToken()
		assert.Equal(t, "token-1", token)
		assert.True(t, expires.Equal(tokenExpires))
	})
}
