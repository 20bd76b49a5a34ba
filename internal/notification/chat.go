// Package notification delivers post-login notifications to the chat bridge.
//
// Delivery never blocks or fails a login: callers hand the login identifier
// to a Dispatcher, which runs the Notifier on the notify worker pool or
// enqueues a River job.
//
// Import Path: oauthbridge.io/bridge/internal/notification
package notification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
)

// ActionAddUserToRoom is the chat bridge action invoked after login.
const ActionAddUserToRoom = "addusertoroom"

// DefaultTimeout bounds a single chat bridge call.
const DefaultTimeout = 10 * time.Second

// ErrRejected is returned when the chat bridge answers with an error body.
var ErrRejected = errors.New("chat bridge rejected request")

// Result is the decoded chat bridge response.
type Result struct {
	Success bool
	Message string
}

// Notifier announces a logged-in user to an external system.
type Notifier interface {
	Notify(ctx context.Context, loginIdentifier string) (Result, error)
}

// ChatNotifier calls the chat bridge HTTP endpoint.
type ChatNotifier struct {
	baseURL string
	token   string
	project string
	client  *http.Client
}

// NewChatNotifier creates a ChatNotifier. A non-positive timeout falls back
// to DefaultTimeout.
func NewChatNotifier(baseURL, token, project string, timeout time.Duration) *ChatNotifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ChatNotifier{
		baseURL: baseURL,
		token:   token,
		project: project,
		client:  &http.Client{Timeout: timeout},
	}
}

// Notify asks the chat bridge to add the user to the project room.
func (n *ChatNotifier) Notify(ctx context.Context, loginIdentifier string) (Result, error) {
	if loginIdentifier == "" {
		return Result{}, fmt.Errorf("chat notify: empty login identifier")
	}

	u, err := url.Parse(n.baseURL)
	if err != nil {
		return Result{}, fmt.Errorf("chat notify: parse base url: %w", err)
	}
	q := u.Query()
	q.Set("token", n.token)
	q.Set("action", ActionAddUserToRoom)
	q.Set("project", n.project)
	q.Set("username", loginIdentifier)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("chat notify: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("chat notify: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("chat notify: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("chat notify: unexpected status %d", resp.StatusCode)
	}
	return decodeResult(body)
}

func decodeResult(body []byte) (Result, error) {
	if !gjson.ValidBytes(body) {
		return Result{}, fmt.Errorf("chat notify: response is not JSON")
	}
	if e := gjson.GetBytes(body, "error"); e.Exists() && e.String() != "" {
		return Result{Message: e.String()}, fmt.Errorf("%w: %s", ErrRejected, e.String())
	}
	s := gjson.GetBytes(body, "success")
	return Result{Success: s.Exists(), Message: s.String()}, nil
}
