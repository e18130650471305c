package httpfga

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/akozyrev/ragshield/internal/core/domain"
	"github.com/akozyrev/ragshield/internal/infrastructure/resilience"
)

// Client talks to a relationship-based authorization service over HTTP.
// Any transport or decode failure surfaces as an error; the retrieval
// filter treats errors as denials, so a broken policy service never
// leaks a document.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, token string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

type checkRequest struct {
	Subject  string `json:"subject"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

func (c *Client) Check(ctx context.Context, subject, relation, object string) (bool, error) {
	var allowed bool
	op := func(ctx context.Context) error {
		result, err := c.check(ctx, subject, relation, object)
		if err != nil {
			return err
		}
		allowed = result
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "authz.check", op)
	} else {
		err = op(ctx)
	}
	if err != nil {
		return false, err
	}
	return allowed, nil
}

func (c *Client) check(ctx context.Context, subject, relation, object string) (bool, error) {
	body, err := json.Marshal(checkRequest{Subject: subject, Relation: relation, Object: object})
	if err != nil {
		return false, fmt.Errorf("marshal check request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/check", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create check request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, domain.WrapError(domain.ErrTemporary, "authz check request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return false, domain.WrapError(domain.ErrTemporary, "authz check status", statusError(resp))
	}
	if resp.StatusCode >= 300 {
		return false, statusError(resp)
	}

	var decoded checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false, fmt.Errorf("decode check response: %w", err)
	}
	return decoded.Allowed, nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("authz check status: %s", resp.Status)
	}
	return fmt.Errorf("authz check status: %s: %s", resp.Status, msg)
}
