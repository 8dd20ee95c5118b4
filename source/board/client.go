// Package board is the client side of the kanban: it keeps the pages a board
// shows, applies drags optimistically and reconciles them with the server.
package board

import (
	"bytes"
	"context"
	"crm/source/schemas"
	"crm/source/utils"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Remote is the server surface a board talks to.
type Remote interface {
	GetStagePage(ctx context.Context, request schemas.StagePageRequest) (schemas.StagePage, error)
	GetBatch(ctx context.Context, requests []schemas.StagePageRequest) ([]schemas.BatchItem, error)
	MoveToStage(ctx context.Context, request schemas.TransitionRequest) (schemas.TransitionResult, error)
}

// RemoteError is a failure reported by the server. It unwraps to one of the
// utils.Err* kinds when the server tagged it.
type RemoteError struct {
	Status  int
	Message string
	Kind    error
}

func (e *RemoteError) Error() string {
	if e.Kind != nil {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Kind
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.http = httpClient }
}

// WithReadRetries sets how many times a read failing with a transient error
// is retried, waiting backoff, 2*backoff, ... between attempts.
func WithReadRetries(retries int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.retries = retries
		c.backoff = backoff
	}
}

// Client is the HTTP implementation of Remote.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	retries int
	backoff time.Duration
}

func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		retries: 2,
		backoff: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) GetStagePage(ctx context.Context, request schemas.StagePageRequest) (schemas.StagePage, error) {
	page := schemas.StagePage{}
	err := c.retryRead(ctx, func() error {
		return c.do(ctx, http.MethodPost, "/v1/kanban/stage", request, &page)
	})
	return page, err
}

func (c *Client) GetBatch(ctx context.Context, requests []schemas.StagePageRequest) ([]schemas.BatchItem, error) {
	results := []schemas.BatchItem{}
	err := c.retryRead(ctx, func() error {
		return c.do(ctx, http.MethodPost, "/v1/kanban/batch", schemas.BatchRequest{Requests: requests}, &results)
	})
	if err != nil {
		return nil, err
	}

	for i := range results {
		if results[i].Data == nil {
			results[i].Err = &RemoteError{Message: results[i].Message, Kind: utils.KindError(results[i].Error)}
		}
	}
	return results, nil
}

// MoveToStage is never retried: a lost acknowledgement must be resolved by
// refetching the reference, not by replaying the precondition.
func (c *Client) MoveToStage(ctx context.Context, request schemas.TransitionRequest) (schemas.TransitionResult, error) {
	result := schemas.TransitionResult{}
	path := "/v1/funnel-references/" + request.FunnelReferenceID.Hex() + "/stage"
	err := c.do(ctx, http.MethodPatch, path, request, &result)
	return result, err
}

func (c *Client) retryRead(ctx context.Context, read func() error) error {
	backoff := c.backoff
	for attempt := 0; ; attempt++ {
		err := read()
		if err == nil || attempt >= c.retries || !errors.Is(err, utils.ErrTransientIO) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", utils.ErrTransientIO, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", utils.ErrTransientIO, err)
	}

	response := envelope{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &response); err != nil && resp.StatusCode < 400 {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	if resp.StatusCode >= 400 {
		kind := utils.KindError(response.Error)
		if kind == nil && (resp.StatusCode == http.StatusBadGateway || resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusGatewayTimeout) {
			kind = utils.ErrTransientIO
		}
		return &RemoteError{Status: resp.StatusCode, Message: response.Message, Kind: kind}
	}

	if out == nil || len(response.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(response.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
