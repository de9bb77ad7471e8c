package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yuditv/gerenciadorprofinal-sub001/internal/metrics"
)

const maxBodyBytes = 4 << 20

// Client talks to a reseller panel that speaks the common
// "key + action" form protocol.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log *zap.Logger, m *metrics.Metrics) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		log:     log,
		metrics: m,
	}
}

func (c *Client) Services(ctx context.Context) ([]Service, error) {
	var out []Service
	if err := c.call(ctx, "services", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Add(ctx context.Context, req AddRequest) (string, error) {
	params := url.Values{}
	params.Set("service", strconv.FormatInt(req.Service, 10))
	params.Set("link", req.Link)
	if req.Quantity > 0 {
		params.Set("quantity", strconv.FormatInt(req.Quantity, 10))
	}
	if req.Comments != "" {
		params.Set("comments", req.Comments)
	}
	if req.Runs > 0 {
		params.Set("runs", strconv.FormatInt(req.Runs, 10))
	}
	if req.Interval > 0 {
		params.Set("interval", strconv.FormatInt(req.Interval, 10))
	}

	var out AddResult
	if err := c.call(ctx, "add", params, &out); err != nil {
		return "", err
	}
	if out.Order == "" {
		return "", &Error{Kind: KindParse, Action: "add", Message: "response has no order id"}
	}
	return out.Order.String(), nil
}

func (c *Client) Status(ctx context.Context, providerOrderID string) (StatusResult, error) {
	var out StatusResult
	err := c.call(ctx, "status", url.Values{"order": {providerOrderID}}, &out)
	if err != nil {
		return StatusResult{}, err
	}
	if out.Status == "" {
		return StatusResult{}, &Error{Kind: KindParse, Action: "status", Message: "response has no status"}
	}
	return out, nil
}

// MultiStatus returns the provider payload as is; its shape is keyed by
// provider order id and is not interpreted here.
func (c *Client) MultiStatus(ctx context.Context, providerOrderIDs []string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call(ctx, "status", url.Values{"orders": {strings.Join(providerOrderIDs, ",")}}, &out)
	return out, err
}

func (c *Client) Refill(ctx context.Context, providerOrderID string) (string, error) {
	var out RefillResult
	if err := c.call(ctx, "refill", url.Values{"order": {providerOrderID}}, &out); err != nil {
		return "", err
	}
	if out.Refill == "" {
		return "", &Error{Kind: KindParse, Action: "refill", Message: "response has no refill id"}
	}
	return out.Refill.String(), nil
}

func (c *Client) RefillStatus(ctx context.Context, refillID string) (string, error) {
	var out RefillStatusResult
	if err := c.call(ctx, "refill_status", url.Values{"refill": {refillID}}, &out); err != nil {
		return "", err
	}
	if out.Status == "" {
		return "", &Error{Kind: KindParse, Action: "refill_status", Message: "response has no status"}
	}
	return out.Status.String(), nil
}

func (c *Client) Cancel(ctx context.Context, providerOrderIDs []string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call(ctx, "cancel", url.Values{"orders": {strings.Join(providerOrderIDs, ",")}}, &out)
	return out, err
}

func (c *Client) call(ctx context.Context, action string, params url.Values, out any) (err error) {
	start := time.Now()
	defer func() {
		result := "ok"
		var perr *Error
		if errors.As(err, &perr) {
			result = string(perr.Kind)
		}
		c.metrics.ProviderCall(action, result, time.Since(start))
		if err != nil {
			c.log.Warn("provider call failed", zap.String("action", action), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		}
	}()

	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	form.Set("key", c.apiKey)
	form.Set("action", action)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return &Error{Kind: KindHTTP, Action: action, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return &Error{Kind: KindTimeout, Action: action, Message: "request timed out"}
		}
		return &Error{Kind: KindHTTP, Action: action, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if isTimeout(err) {
			return &Error{Kind: KindTimeout, Action: action, Message: "reading response timed out"}
		}
		return &Error{Kind: KindHTTP, Action: action, StatusCode: resp.StatusCode, Message: err.Error()}
	}
	body = bytes.TrimSpace(body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, details := remoteMessage(body)
		if msg == "" {
			msg = "unexpected http status"
		}
		return &Error{
			Kind:       KindHTTP,
			Action:     action,
			StatusCode: resp.StatusCode,
			Message:    msg,
			Details:    detailsOr(details, body),
		}
	}

	if !json.Valid(body) {
		return &Error{Kind: KindParse, Action: action, Message: "response is not valid JSON", Details: truncate(string(body), maxDetailsLen)}
	}
	if msg, details := remoteMessage(body); msg != "" {
		return &Error{Kind: KindRemote, Action: action, Message: msg, Details: detailsOr(details, body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindParse, Action: action, Message: fmt.Sprintf("decode response: %v", err), Details: truncate(string(body), maxDetailsLen)}
	}
	return nil
}

// remoteMessage extracts the "error" and "details" fields of an object
// body, both cut to maxDetailsLen.
func remoteMessage(body []byte) (msg, details string) {
	if len(body) == 0 || body[0] != '{' {
		return "", ""
	}
	var env struct {
		Error   json.RawMessage `json:"error"`
		Details json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return "", ""
	}
	return truncate(looseText(env.Error), maxDetailsLen), truncate(looseText(env.Details), maxDetailsLen)
}

// looseText renders a JSON string as its value and any other non-empty
// value as raw JSON. null and false count as absent.
func looseText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	if string(raw) == "null" || string(raw) == "false" {
		return ""
	}
	return string(raw)
}

func detailsOr(details string, body []byte) string {
	if details != "" {
		return details
	}
	return truncate(string(body), maxDetailsLen)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
