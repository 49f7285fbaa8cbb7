package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/HarshTuring/docklens/internal/entity"
)

// Fallback modes for an unreachable auth service
const (
	FallbackPermissive  = "permissive"
	FallbackRestrictive = "restrictive"
)

// Config is read from the auth section of the application config, with
// AUTH_SERVICE_URL / AUTH_TIMEOUT / AUTH_MAX_RETRIES / AUTH_FALLBACK_MODE
// environment overrides applied by the config package.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	FallbackMode string
}

// Client validates bearer tokens with the external authorization service.
// Total wait per request is bounded by Timeout * (1 + MaxRetries): every
// attempt uses the same fixed timeout, there is no backoff growth.
type Client interface {
	Validate(ctx context.Context, token string) entity.AuthDecision
	Login(ctx context.Context, username, password string) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, token string) error
}

// TokenPair is the auth service's token response.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
}

type authClient struct {
	config Config
	http   *http.Client
}

func NewClient(config Config) Client {
	if config.Timeout <= 0 {
		config.Timeout = 3 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.FallbackMode != FallbackPermissive {
		config.FallbackMode = FallbackRestrictive
	}

	return &authClient{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
	}
}

type meResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Validate resolves one of four outcomes: validated, denied (authoritative,
// never retried), or one of the two fallbacks once all attempts against an
// unreachable service are exhausted.
func (c *authClient) Validate(ctx context.Context, token string) entity.AuthDecision {
	if token == "" {
		return entity.AuthDecision{Allowed: false, Reason: entity.ReasonDenied}
	}

	attempts := 1 + c.config.MaxRetries
	for attempt := 0; attempt < attempts; attempt++ {
		decision, retryable := c.attempt(ctx, token)
		if !retryable {
			return decision
		}

		logrus.WithFields(logrus.Fields{
			"attempt":      attempt + 1,
			"max_attempts": attempts,
		}).Warn("auth service unreachable, retrying")
	}

	if c.config.FallbackMode == FallbackPermissive {
		logrus.Warn("auth service unavailable, fallback mode permissive: allowing request")
		return entity.AuthDecision{Allowed: true, Reason: entity.ReasonFallbackPermissive}
	}

	logrus.Warn("auth service unavailable, fallback mode restrictive: rejecting request")
	return entity.AuthDecision{Allowed: false, Reason: entity.ReasonFallbackRestrictive}
}

// attempt performs a single call. The second return value reports whether
// the failure is transient and worth another attempt.
func (c *authClient) attempt(ctx context.Context, token string) (entity.AuthDecision, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/auth/me", nil)
	if err != nil {
		return entity.AuthDecision{Allowed: false, Reason: entity.ReasonDenied}, false
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		// Таймаут или сеть — transient
		return entity.AuthDecision{}, true
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var me meResponse
		if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
			return entity.AuthDecision{}, true
		}
		return entity.AuthDecision{
			Allowed: true,
			Reason:  entity.ReasonValidated,
			UserID:  me.UserID,
		}, false
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Отказ сервиса авторизации окончателен, fallback не применяется
		return entity.AuthDecision{Allowed: false, Reason: entity.ReasonDenied}, false
	default:
		return entity.AuthDecision{}, true
	}
}

func (c *authClient) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	body := map[string]string{"username": username, "password": password}
	return c.tokenRequest(ctx, "/auth/login", "", body)
}

func (c *authClient) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	body := map[string]string{"refresh_token": refreshToken}
	return c.tokenRequest(ctx, "/auth/refresh", "", body)
}

func (c *authClient) Logout(ctx context.Context, token string) error {
	_, err := c.tokenRequest(ctx, "/auth/logout", token, nil)
	return err
}

func (c *authClient) tokenRequest(ctx context.Context, path, token string, body interface{}) (*TokenPair, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("auth service returned status %d", resp.StatusCode)
	}

	var pair TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		if err == io.EOF {
			return &TokenPair{}, nil
		}
		return nil, err
	}
	return &pair, nil
}
