package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-livechat/pkg/syncproto"
)

// ErrUnauthorized is returned when the server rejects the sync token.
var ErrUnauthorized = errors.New("syncclient: sync token rejected")

// Transport carries push and pull requests to the server.
type Transport interface {
	Push(ctx context.Context, token string, req syncproto.PushRequest) (syncproto.PushResponse, error)
	Pull(ctx context.Context, token string, req syncproto.PullRequest) (syncproto.PullResponse, error)
}

// HTTPError describes a non-success status from the sync endpoints.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("syncclient: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("syncclient: unexpected status %d: %s", e.StatusCode, e.Message)
}

const defaultTransportTimeout = 10 * time.Second

// HTTPTransport talks to the sync endpoints of the API over HTTP.
type HTTPTransport struct {
	baseURL string
	timeout time.Duration
}

// NewHTTPTransport builds a transport rooted at baseURL, e.g. http://localhost:8080.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = defaultTransportTimeout
	}
	return &HTTPTransport{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

// Push submits a batch. On failure statuses the decoded partial response is returned with the error.
func (t *HTTPTransport) Push(ctx context.Context, token string, req syncproto.PushRequest) (syncproto.PushResponse, error) {
	code, body, err := t.post(ctx, "/api/v1/sync/push", token, req)
	if err != nil {
		return syncproto.PushResponse{}, err
	}

	var resp syncproto.PushResponse
	decodeErr := json.Unmarshal(body, &resp)
	if code == fiber.StatusOK {
		if decodeErr != nil {
			return syncproto.PushResponse{}, fmt.Errorf("decode push response: %w", decodeErr)
		}
		return resp, nil
	}
	if decodeErr != nil {
		resp = syncproto.PushResponse{}
	}
	return resp, statusError(code, body)
}

// Pull fetches patches after req.Cookie.
func (t *HTTPTransport) Pull(ctx context.Context, token string, req syncproto.PullRequest) (syncproto.PullResponse, error) {
	code, body, err := t.post(ctx, "/api/v1/sync/pull", token, req)
	if err != nil {
		return syncproto.PullResponse{}, err
	}
	if code != fiber.StatusOK {
		return syncproto.PullResponse{}, statusError(code, body)
	}

	var resp syncproto.PullResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return syncproto.PullResponse{}, fmt.Errorf("decode pull response: %w", err)
	}
	return resp, nil
}

func (t *HTTPTransport) post(ctx context.Context, path, token string, payload interface{}) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	timeout := t.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	agent := fiber.Post(t.baseURL + path)
	agent.Set(fiber.HeaderAuthorization, "Bearer "+token)
	agent.JSON(payload)
	agent.Timeout(timeout)

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return 0, nil, fmt.Errorf("post %s: %w", path, errors.Join(errs...))
	}
	return code, body, nil
}

func statusError(code int, body []byte) error {
	if code == fiber.StatusUnauthorized {
		return ErrUnauthorized
	}

	var envelope struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &envelope)
	return &HTTPError{StatusCode: code, Message: envelope.Message}
}
