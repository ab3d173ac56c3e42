package cloudlock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

var ErrInvalidCredentials = errors.New("invalid credentials")
var ErrRequiresValidation = errors.New("account requires validation")
var ErrConnection = errors.New("connection error")

// APIError is returned for responses the session has no specific handling
// for.
type APIError struct {
	StatusCode int
	Body       string
}

func (e APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Body)
}

const sessionStatusAuthenticated = "authenticated"
const sessionStatusRequiresValidation = "requiresValidation"

type AuthResult struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Session is a REST session against the vendor cloud API. It holds the
// current access token and is safe for concurrent use.
type Session struct {
	client    *http.Client
	baseURL   string
	installId string

	m           sync.RWMutex
	accessToken string
	expiresAt   time.Time
}

func NewSession(baseURL string, installId string, client *http.Client) *Session {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Session{
		client:    client,
		baseURL:   baseURL,
		installId: installId,
	}
}

func (s *Session) AccessToken() string {
	s.m.RLock()
	defer s.m.RUnlock()

	return s.accessToken
}

func (s *Session) SetAccessToken(token string, expiresAt time.Time) {
	s.m.Lock()
	defer s.m.Unlock()

	s.accessToken = token
	s.expiresAt = expiresAt
}

func (s *Session) TokenExpiresWithin(d time.Duration) bool {
	s.m.RLock()
	defer s.m.RUnlock()

	return s.expiresAt.Before(time.Now().Add(d))
}

type authenticateRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	InstallId  string `json:"installId"`
}

type authenticateResponse struct {
	Status      string    `json:"status"`
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Authenticate exchanges credentials for an access token. Bad credentials
// surface as ErrInvalidCredentials, an account pending two factor
// confirmation as ErrRequiresValidation, transport failures wrap
// ErrConnection.
func (s *Session) Authenticate(ctx context.Context, email string, password string) (AuthResult, error) {
	body, err := json.Marshal(authenticateRequest{
		Identifier: email,
		Password:   password,
		InstallId:  s.installId,
	})
	if err != nil {
		return AuthResult{}, err
	}

	resp, err := s.do(ctx, http.MethodPost, "/session", bytes.NewReader(body), false)
	if err != nil {
		return AuthResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return AuthResult{}, ErrInvalidCredentials
	default:
		return AuthResult{}, readAPIError(resp)
	}

	var ar authenticateResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return AuthResult{}, fmt.Errorf("failed to decode authentication response: %w", err)
	}

	switch ar.Status {
	case sessionStatusAuthenticated:
	case sessionStatusRequiresValidation:
		return AuthResult{}, ErrRequiresValidation
	default:
		return AuthResult{}, fmt.Errorf("unexpected authentication status: %s", ar.Status)
	}

	s.SetAccessToken(ar.AccessToken, ar.ExpiresAt)

	return AuthResult{AccessToken: ar.AccessToken, ExpiresAt: ar.ExpiresAt}, nil
}

type refreshResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// RefreshAccessToken trades the current token for a fresh one.
func (s *Session) RefreshAccessToken(ctx context.Context) (AuthResult, error) {
	resp, err := s.do(ctx, http.MethodGet, "/access-token", nil, true)
	if err != nil {
		return AuthResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return AuthResult{}, ErrInvalidCredentials
	default:
		return AuthResult{}, readAPIError(resp)
	}

	var rr refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return AuthResult{}, fmt.Errorf("failed to decode token refresh response: %w", err)
	}

	s.SetAccessToken(rr.AccessToken, rr.ExpiresAt)

	return AuthResult{AccessToken: rr.AccessToken, ExpiresAt: rr.ExpiresAt}, nil
}

type lockDetails struct {
	Id           string `json:"id"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Serial       string `json:"serial"`
	Status       string `json:"status"`
	DoorState    string `json:"doorState"`
}

// Locks fetches the account's lock inventory.
func (s *Session) Locks(ctx context.Context) ([]lockDetails, error) {
	resp, err := s.do(ctx, http.MethodGet, "/locks", nil, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var locks []lockDetails
	if err := json.NewDecoder(resp.Body).Decode(&locks); err != nil {
		return nil, fmt.Errorf("failed to decode lock inventory: %w", err)
	}

	return locks, nil
}

// SetLockStatus commands a lock, status is "locked" or "unlocked".
func (s *Session) SetLockStatus(ctx context.Context, id string, status string) error {
	body, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return err
	}

	resp, err := s.do(ctx, http.MethodPut, "/locks/"+id+"/status", bytes.NewReader(body), true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}

	return nil
}

func (s *Session) do(ctx context.Context, method string, path string, body io.Reader, authenticated bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	if authenticated {
		req.Header.Set("Authorization", "Bearer "+s.AccessToken())
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnection, ctx.Err())
		}

		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	return resp, nil
}

func readAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return APIError{StatusCode: resp.StatusCode, Body: string(b)}
}
