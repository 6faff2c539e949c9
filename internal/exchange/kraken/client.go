// Package kraken is the live Exchange adapter for Kraken spot.
package kraken

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"SpotAgent/internal/domain/models"
	"SpotAgent/internal/domain/repository"
	"SpotAgent/internal/service/ratelimit"
	"SpotAgent/pkg/logger"

	apphttp "SpotAgent/pkg/http"
)

const (
	DefaultBaseURL = "https://api.kraken.com"

	// Private endpoints share a decaying call counter; stay under it.
	privateBucket   = "kraken:private"
	privateCapacity = 15
	privateRefill   = 0.33
)

type Client struct {
	baseURL   string
	apiKey    string
	secret    []byte
	http      *apphttp.Client
	timeout   time.Duration
	limiter   *ratelimit.Limiter
	stream    *Stream
	wsMaxAge  time.Duration
	buyByCost bool
	orderPoll time.Duration
	l         *logger.Logger
	lastNonce atomic.Int64

	mu      sync.RWMutex
	markets map[string]models.Market
	byID    map[string]string
}

type Option func(*Client) error

func WithBaseURL(u string) Option {
	return func(c *Client) error {
		c.baseURL = strings.TrimRight(u, "/")
		return nil
	}
}

// WithCredentials sets the API key and the base64 secret.
func WithCredentials(key, secret string) Option {
	return func(c *Client) error {
		if key == "" && secret == "" {
			return nil
		}
		raw, err := base64.StdEncoding.DecodeString(secret)
		if err != nil {
			return fmt.Errorf("kraken secret: %w", err)
		}
		c.apiKey, c.secret = key, raw
		return nil
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.timeout = d
		return nil
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) error {
		c.l = l
		return nil
	}
}

func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) error {
		c.limiter = l
		return nil
	}
}

// WithStream serves FetchTicker from s while its price is younger than maxAge.
func WithStream(s *Stream, maxAge time.Duration) Option {
	return func(c *Client) error {
		c.stream, c.wsMaxAge = s, maxAge
		return nil
	}
}

// WithBuyByCost toggles quote-denominated market buys (oflags=viqc).
func WithBuyByCost(on bool) Option {
	return func(c *Client) error {
		c.buyByCost = on
		return nil
	}
}

func WithOrderPoll(d time.Duration) Option {
	return func(c *Client) error {
		c.orderPoll = d
		return nil
	}
}

func New(opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:   DefaultBaseURL,
		timeout:   10 * time.Second,
		buyByCost: true,
		orderPoll: 250 * time.Millisecond,
		l:         logger.Nop(),
		markets:   map[string]models.Market{},
		byID:      map[string]string{},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	if c.limiter == nil {
		c.limiter = ratelimit.New()
	}
	c.http = apphttp.NewClient(apphttp.WithTimeout(c.timeout))
	return c, nil
}

type envelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

func (c *Client) public(ctx context.Context, method string, query url.Values, dest any) error {
	opts := &apphttp.RequestOptions{
		Method:      apphttp.MethodGet,
		URL:         c.baseURL + "/0/public/" + method,
		QueryParams: query,
	}
	return c.send(ctx, method, opts, dest)
}

func (c *Client) private(ctx context.Context, method string, params url.Values, dest any) error {
	if c.apiKey == "" {
		return fmt.Errorf("kraken %s: api credentials not configured: %w", method, errNotSent)
	}
	if err := c.limiter.Wait(ctx, privateBucket, privateCapacity, privateRefill); err != nil {
		return fmt.Errorf("kraken %s: %w: %w", method, err, errNotSent)
	}
	if params == nil {
		params = url.Values{}
	}
	nonce := strconv.FormatInt(c.nextNonce(), 10)
	params.Set("nonce", nonce)
	body := params.Encode()
	path := "/0/private/" + method

	opts := &apphttp.RequestOptions{
		Method: apphttp.MethodPost,
		URL:    c.baseURL + path,
		Headers: map[string]string{
			"API-Key":      c.apiKey,
			"API-Sign":     sign(path, nonce, body, c.secret),
			"Content-Type": "application/x-www-form-urlencoded; charset=utf-8",
		},
		Body: body,
	}
	return c.send(ctx, method, opts, dest)
}

func (c *Client) send(ctx context.Context, method string, opts *apphttp.RequestOptions, dest any) error {
	var env envelope
	if err := c.http.SendAndParse(ctx, opts, &env); err != nil {
		return classifyTransport(ctx, method, err)
	}
	if len(env.Error) > 0 {
		return classifyVenue(method, env.Error)
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, dest); err != nil {
		return fmt.Errorf("kraken %s decode: %w", method, err)
	}
	return nil
}

// nextNonce is strictly increasing even when called twice in one millisecond.
func (c *Client) nextNonce() int64 {
	for {
		last := c.lastNonce.Load()
		n := time.Now().UnixMilli()
		if n <= last {
			n = last + 1
		}
		if c.lastNonce.CompareAndSwap(last, n) {
			return n
		}
	}
}

// classifyTransport marks network failures, 429 and 5xx as transient. An
// error caused by the caller's own context is returned untouched.
func classifyTransport(ctx context.Context, method string, err error) error {
	if ctx.Err() != nil {
		return err
	}
	var se *apphttp.StatusError
	if errors.As(err, &se) && !se.Retryable() {
		return fmt.Errorf("kraken %s: %w", method, err)
	}
	return fmt.Errorf("kraken %s: %w: %w", method, err, repository.ErrTransient)
}

// errNotSent marks failures raised before a request left the process.
var errNotSent = errors.New("request not sent")

// venueError is the error list of a response the venue did answer.
type venueError string

func (e venueError) Error() string { return string(e) }

func classifyVenue(method string, venue []string) error {
	msg := strings.Join(venue, "; ")
	var kind error
	switch {
	case containsAny(msg, "EAPI:Rate limit", "EService:Unavailable", "EService:Busy", "EService:Deadline", "EGeneral:Temporary lockout", "EOrder:Rate limit"):
		kind = repository.ErrTransient
	case containsAny(msg, "EOrder:Order minimum not met", "EOrder:Cost minimum not met", "EGeneral:Invalid arguments:volume minimum"):
		kind = repository.ErrMinAmount
	case containsAny(msg, "EOrder:Insufficient funds"):
		kind = repository.ErrInsufficientFunds
	case containsAny(msg, "EQuery:Unknown asset pair"):
		kind = repository.ErrUnknownSymbol
	case containsAny(msg, "EOrder:", "EGeneral:Invalid arguments"):
		kind = repository.ErrInvalidOrder
	default:
		return fmt.Errorf("kraken %s: %w", method, venueError(msg))
	}
	return fmt.Errorf("kraken %s: %w: %w", method, venueError(msg), kind)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

var _ repository.Exchange = (*Client)(nil)
