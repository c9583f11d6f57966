package remote

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/denster32/dogtv-datacore/models"
)

// HTTPClientConfig configures the HTTP replica adapter.
type HTTPClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type httpReplica struct {
	client *resty.Client

	mu    sync.RWMutex
	token string
}

// NewHTTPReplica constructs a Replica speaking the bundled pull/push HTTP
// protocol (see Handler). Every call is bounded by cfg.Timeout; transport
// failures and timeouts surface as ErrUnavailable so the sync engine can
// back off and retry.
func NewHTTPReplica(cfg HTTPClientConfig) Replica {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout)

	return &httpReplica{client: cli, token: strings.TrimSpace(cfg.Token)}
}

// SetToken replaces the bearer token used on subsequent calls.
func (h *httpReplica) SetToken(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = strings.TrimSpace(token)
}

func (h *httpReplica) bearer() (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.token == "" {
		return "", nil
	}
	// reject a token known to be expired before spending a round trip
	if expired, err := TokenExpired(h.token); err == nil && expired {
		return "", fmt.Errorf("%w: token expired", ErrUnauthorized)
	}
	return h.token, nil
}

type pullResponse struct {
	Changes []models.ChangeEnvelope `json:"changes"`
	Next    models.SyncCursor       `json:"next"`
}

type pushRequest struct {
	Changes []models.ChangeEnvelope `json:"changes"`
	Length  int                     `json:"length"`
}

type pushResponse struct {
	Acks   []models.Ack `json:"acks"`
	Length int          `json:"length"`
}

func (h *httpReplica) Pull(ctx context.Context, since models.SyncCursor) (PullResult, error) {
	token, err := h.bearer()
	if err != nil {
		return PullResult{}, err
	}

	var body pullResponse
	req := h.client.R().
		SetContext(ctx).
		SetQueryParam("since", string(since)).
		SetResult(&body)
	if token != "" {
		req.SetAuthToken(token)
	}

	resp, err := req.Get("/api/sync/pull")
	if err != nil {
		return PullResult{}, fmt.Errorf("%w: pull request: %w", ErrUnavailable, err)
	}
	if err = mapHTTPError(resp); err != nil {
		return PullResult{}, err
	}

	return PullResult{Changes: body.Changes, Next: body.Next}, nil
}

func (h *httpReplica) Push(ctx context.Context, changes []models.ChangeEnvelope) ([]models.Ack, error) {
	token, err := h.bearer()
	if err != nil {
		return nil, err
	}

	var body pushResponse
	req := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(pushRequest{Changes: changes, Length: len(changes)}).
		SetResult(&body)
	if token != "" {
		req.SetAuthToken(token)
	}

	resp, err := req.Post("/api/sync/push")
	if err != nil {
		return nil, fmt.Errorf("%w: push request: %w", ErrUnavailable, err)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	return body.Acks, nil
}
