// Package recordstore talks to the patient record service: it verifies login sessions
// before a stream is opened and stores emitted predictions.
package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"

	"github.com/pscheid92/vitalpulse/internal/domain"
	"github.com/pscheid92/vitalpulse/internal/platform/retry"
	"github.com/pscheid92/vitalpulse/internal/platform/version"
)

const (
	defaultTimeout = 5 * time.Second

	sessionPath = "/patient/session"
	recordPath  = "/patientrecord"

	statusAuthenticated = "authenticated"
)

// Client is both the session verifier and the HTTP history recorder.
type Client struct {
	http   *resty.Client
	verify singleflight.Group
}

var (
	_ domain.SessionVerifier = (*Client)(nil)
	_ domain.HistoryRecorder = (*Client)(nil)
)

type sessionRequest struct {
	Email      string `json:"email"`
	SessionKey string `json:"sessionKey"`
}

type sessionResponse struct {
	Status string `json:"status"`
}

type recordRequest struct {
	Email      string                  `json:"email"`
	Prediction domain.PredictionResult `json:"prediction"`
}

// NewClient creates a client for the record service at baseURL (e.g. http://localhost:3000).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", version.UserAgent())

	return &Client{http: httpClient}
}

// VerifySession returns nil only when the record service reports the session as
// authenticated. A rejected session wraps domain.ErrUnauthenticated; anything else is a
// transport or remote failure. Concurrent checks of the same pair share one request.
func (c *Client) VerifySession(ctx context.Context, email, sessionKey string) error {
	key := email + "\x00" + sessionKey
	_, err, _ := c.verify.Do(key, func() (any, error) {
		return nil, c.verifySession(context.WithoutCancel(ctx), email, sessionKey)
	})
	return err
}

func (c *Client) verifySession(ctx context.Context, email, sessionKey string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(sessionRequest{Email: email, SessionKey: sessionKey}).
		Post(sessionPath)
	if err != nil {
		return fmt.Errorf("failed to verify session: %w", err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusNotFound:
		return fmt.Errorf("%w: record store returned %d", domain.ErrUnauthenticated, code)
	case !resp.IsSuccess():
		return fmt.Errorf("failed to verify session: unexpected status %d", code)
	}

	// Decoded by hand: the service does not always label its JSON responses.
	var result sessionResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return fmt.Errorf("%w: unreadable session response", domain.ErrUnauthenticated)
	}
	if result.Status != statusAuthenticated {
		return fmt.Errorf("%w: status %q", domain.ErrUnauthenticated, result.Status)
	}
	return nil
}

// Record posts one prediction. Client errors other than 429 are not worth retrying and
// are marked permanent.
func (c *Client) Record(ctx context.Context, rec domain.PredictionRecord) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(recordRequest{Email: rec.Email, Prediction: rec.Prediction}).
		Post(recordPath)
	if err != nil {
		return fmt.Errorf("failed to post prediction record: %w", err)
	}

	code := resp.StatusCode()
	switch {
	case resp.IsSuccess():
		return nil
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrThrottled, code)
	case code >= 400 && code < 500:
		return retry.Permanent(fmt.Errorf("record store rejected prediction: status %d", code))
	default:
		return fmt.Errorf("failed to post prediction record: unexpected status %d", code)
	}
}
