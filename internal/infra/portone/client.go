// Package portone talks to the PortOne (iamport) v1 REST API.
package portone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"bindery-orders/internal/apperror"
	"bindery-orders/internal/infra"
	"bindery-orders/internal/metrics"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
)

// tokenSkew is how long before expiry a cached token stops being used.
const tokenSkew = time.Minute

type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	// Sandbox adds include_sandbox=true to lookups (every non-production env).
	Sandbox bool
	Timeout time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithMetrics(m *metrics.Metrics) Option { return func(c *Client) { c.metrics = m } }

func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// Client owns its access token; nothing about it is process-global.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*envelope]
	metrics *metrics.Metrics
	now     func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	group     singleflight.Group
}

var _ infra.PaymentGateway = (*Client)(nil)

func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	c := &Client{
		cfg:  cfg,
		http: &http.Client{},
		now:  time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker[*envelope](gobreaker.Settings{
		Name:        "portone",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Rejections are answers, not outages.
		IsSuccessful: func(err error) bool {
			return err == nil || !apperror.IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

type envelope struct {
	Code     int             `json:"code"`
	Message  string          `json:"message"`
	Response json.RawMessage `json:"response"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiredAt   int64  `json:"expired_at"`
	Now         int64  `json:"now"`
}

type paymentResponse struct {
	ImpUID      string      `json:"imp_uid"`
	MerchantUID string      `json:"merchant_uid"`
	Amount      json.Number `json:"amount"`
	Status      string      `json:"status"`
	PayMethod   string      `json:"pay_method"`
	PgProvider  string      `json:"pg_provider"`
	PgTID       string      `json:"pg_tid"`
	PaidAt      int64       `json:"paid_at"`
}

func (c *Client) Verify(ctx context.Context, reference string) (*infra.PaymentVerification, error) {
	v, err := c.verify(ctx, reference)
	c.metrics.GatewayCall("verify", err)
	return v, err
}

func (c *Client) verify(ctx context.Context, reference string) (*infra.PaymentVerification, error) {
	if reference == "" {
		return nil, apperror.ErrInvalidPayment
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	path := "/payments/" + url.PathEscape(reference)
	if c.cfg.Sandbox {
		path += "?include_sandbox=true"
	}
	env, err := c.call(ctx, http.MethodGet, path, nil, token)
	if err != nil {
		return nil, err
	}

	var p paymentResponse
	if err := json.Unmarshal(env.Response, &p); err != nil {
		return nil, apperror.ErrGatewayRejected.WithMessage("unreadable payment payload").Wrap(err)
	}
	amount, err := integralAmount(p.Amount)
	if err != nil {
		return nil, apperror.ErrGatewayRejected.WithMessage("payment amount %q is not an integer", p.Amount.String())
	}

	out := &infra.PaymentVerification{
		Reference:     p.ImpUID,
		Status:        mapStatus(p.Status),
		Amount:        amount,
		Method:        p.PayMethod,
		TransactionID: p.PgTID,
		MerchantUID:   p.MerchantUID,
		Provider:      p.PgProvider,
	}
	if out.Reference == "" {
		out.Reference = reference
	}
	if p.PaidAt > 0 {
		t := time.Unix(p.PaidAt, 0).UTC()
		out.PaidAt = &t
	}
	return out, nil
}

func (c *Client) Cancel(ctx context.Context, reference, reason string) error {
	err := c.cancel(ctx, reference, reason)
	c.metrics.GatewayCall("cancel", err)
	return err
}

func (c *Client) cancel(ctx context.Context, reference, reason string) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return cancelFailed(err)
	}
	body := map[string]string{"imp_uid": reference, "reason": reason}
	if _, err := c.call(ctx, http.MethodPost, "/payments/cancel", body, token); err != nil {
		return cancelFailed(err)
	}
	return nil
}

// cancelFailed keeps the provider's own text and retryability.
func cancelFailed(err error) error {
	out := apperror.ErrGatewayCancelFailed.Wrap(err)
	if ae, ok := apperror.As(err); ok {
		out.Message = ae.Message
		out.Retryable = ae.Retryable
	}
	return out
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Before(c.expiresAt.Add(-tokenSkew)) {
		tok := c.token
		c.mu.Unlock()
		return tok, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("token", func() (any, error) {
		body := map[string]string{"imp_key": c.cfg.APIKey, "imp_secret": c.cfg.APISecret}
		env, err := c.call(ctx, http.MethodPost, "/users/getToken", body, "")
		if err != nil {
			return "", err
		}
		var tr tokenResponse
		if err := json.Unmarshal(env.Response, &tr); err != nil || tr.AccessToken == "" {
			return "", apperror.ErrGatewayRejected.WithMessage("token response missing access_token")
		}

		expires := time.Unix(tr.ExpiredAt, 0)
		if tr.Now > 0 {
			// expired_at is on the gateway clock; translate to ours
			expires = c.now().Add(time.Duration(tr.ExpiredAt-tr.Now) * time.Second)
		}
		c.mu.Lock()
		c.token, c.expiresAt = tr.AccessToken, expires
		c.mu.Unlock()
		return tr.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *Client) call(ctx context.Context, method, path string, body any, token string) (*envelope, error) {
	env, err := c.breaker.Execute(func() (*envelope, error) {
		return c.do(ctx, method, path, body, token)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, apperror.ErrGatewayUnavailable.Wrap(err)
	}
	return env, err
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string) (*envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal portone request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("build portone request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperror.ErrGatewayUnavailable.Wrap(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperror.ErrGatewayUnavailable.Wrap(err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, apperror.ErrGatewayUnavailable.Wrap(fmt.Errorf("portone %s %s: status %d", method, path, resp.StatusCode))
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		c.invalidateToken()
		return nil, apperror.ErrGatewayUnavailable.Wrap(errors.New("portone rejected the access token"))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, rejected(env.Message, fmt.Errorf("portone %s %s: status %d", method, path, resp.StatusCode))
	}
	if decodeErr != nil {
		return nil, apperror.ErrGatewayRejected.WithMessage("unreadable gateway response").Wrap(decodeErr)
	}
	if env.Code != 0 {
		return nil, rejected(env.Message, fmt.Errorf("portone %s %s: code %d", method, path, env.Code))
	}
	return &env, nil
}

func rejected(msg string, cause error) error {
	e := apperror.ErrGatewayRejected
	if msg != "" {
		e = e.WithMessage("%s", msg)
	}
	return e.Wrap(cause)
}

func mapStatus(s string) infra.GatewayStatus {
	switch s {
	case "paid":
		return infra.GatewaySettled
	case "ready":
		return infra.GatewaySettling
	case "cancelled":
		return infra.GatewayCancelled
	default:
		return infra.GatewayFailed
	}
}

func integralAmount(n json.Number) (int64, error) {
	if v, err := n.Int64(); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("amount %s is not integral", n)
	}
	return int64(f), nil
}
