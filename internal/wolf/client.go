package wolf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// Client is the REST implementation of Gateway.
type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

var _ Gateway = (*Client)(nil)

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Login(ctx context.Context, username, secret string) (*Session, error) {
	req := loginRequest{Username: username, Password: secret}
	var sess Session
	if err := c.doEnvelope(ctx, fasthttp.MethodPost, "/v1/login", "", req, &sess, false); err != nil {
		return nil, err
	}
	if strings.TrimSpace(sess.Token) == "" {
		return nil, &PlatformError{Message: "login response missing token"}
	}
	return &sess, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.doEnvelope(ctx, fasthttp.MethodPost, "/v1/logout", token, nil, nil, false)
}

func (c *Client) ConnectToRoom(ctx context.Context, token, roomRef string) (*RoomJoin, error) {
	req := roomJoinRequest{Room: roomRef}
	var join RoomJoin
	if err := c.doEnvelope(ctx, fasthttp.MethodPost, "/v1/rooms/join", token, req, &join, false); err != nil {
		return nil, err
	}
	return &join, nil
}

func (c *Client) SendMessage(ctx context.Context, token, roomRef, text string) error {
	req := sendRequest{Room: roomRef, Text: text}
	return c.doEnvelope(ctx, fasthttp.MethodPost, "/v1/messages", token, req, nil, false)
}

func (c *Client) SendCommand(ctx context.Context, token, roomRef, command string) error {
	req := sendRequest{Room: roomRef, Text: command}
	return c.doEnvelope(ctx, fasthttp.MethodPost, "/v1/commands", token, req, nil, false)
}

func (c *Client) PrivateMessages(ctx context.Context, token string) ([]PrivateMessage, error) {
	var msgs []PrivateMessage
	if err := c.doEnvelope(ctx, fasthttp.MethodGet, "/v1/messages/private?unread=1", token, nil, &msgs, true); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) MarkMessageRead(ctx context.Context, token, messageID string) error {
	path := "/v1/messages/" + strings.TrimSpace(messageID) + "/read"
	return c.doEnvelope(ctx, fasthttp.MethodPost, path, token, nil, nil, false)
}

// doEnvelope performs a request and unpacks the {success,message,data} wrapper.
// A 2xx response with success=false becomes a PlatformError carrying the
// platform's message.
func (c *Client) doEnvelope(ctx context.Context, method, path, token string, in, out any, retry bool) error {
	url := c.baseURL + path
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(url)
	req.Header.SetContentType("application/json")
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry {
		attempts = c.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			if attempt == attempts || !retry {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			body := string(resp.Body())
			err := fmt.Errorf("wolf api error: status=%d body=%s", status, truncate(body, 512))
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return err
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		var env envelope
		if err := json.Unmarshal(resp.Body(), &env); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if !env.Success {
			return &PlatformError{Message: env.Message}
		}
		if out != nil && len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, out); err != nil {
				return fmt.Errorf("decode response data: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
