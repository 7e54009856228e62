// Package resource fetches upstream documents through the configured
// transports with caching, rate limiting and call-level retries.
package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/samvad-hq/pokedex-seeder/internal/cache"
	"github.com/samvad-hq/pokedex-seeder/internal/domain"
	"github.com/samvad-hq/pokedex-seeder/internal/ledger"
	"github.com/samvad-hq/pokedex-seeder/internal/logger"
	"github.com/samvad-hq/pokedex-seeder/pkg/transport"
)

// CallPolicy is the call-level rate limit and retry policy of one mode.
type CallPolicy struct {
	// Delay is waited before every attempt.
	Delay time.Duration
	// JitterMin/JitterMax add a random delay in [JitterMin, JitterMax).
	JitterMin  time.Duration
	JitterMax  time.Duration
	RetryDelay time.Duration
	MaxRetries int
	// PageDelay is waited between list pages.
	PageDelay time.Duration
}

// DefaultPolicies returns the standard and premium call policies.
func DefaultPolicies(maxRetries int) map[domain.Mode]CallPolicy {
	return map[domain.Mode]CallPolicy{
		domain.ModeStandard: {
			Delay:      time.Second,
			RetryDelay: 3 * time.Second,
			MaxRetries: maxRetries,
			PageDelay:  time.Second,
		},
		domain.ModePremium: {
			JitterMin:  50 * time.Millisecond,
			JitterMax:  100 * time.Millisecond,
			RetryDelay: time.Second,
			MaxRetries: maxRetries,
			PageDelay:  100 * time.Millisecond,
		},
	}
}

// Options configure a Client.
type Options struct {
	BaseURL  string
	Policies map[domain.Mode]CallPolicy
	// PremiumRPS caps premium requests per second across concurrent items.
	// Zero disables the ceiling.
	PremiumRPS float64
	Sleep      func(ctx context.Context, d time.Duration) error
}

// Client implements the remote resource contract.
type Client struct {
	baseURL    string
	transports transport.Registry
	responses  *cache.Responses
	ledger     *ledger.Ledger
	policies   map[domain.Mode]CallPolicy
	limiter    *rate.Limiter
	sleep      func(ctx context.Context, d time.Duration) error
	validate   *validator.Validate
	log        logger.Logger
}

// NewClient wires a client. responses and led are required.
func NewClient(opts Options, transports transport.Registry, responses *cache.Responses, led *ledger.Ledger, log logger.Logger) *Client {
	if opts.Policies == nil {
		opts.Policies = DefaultPolicies(3)
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.PremiumRPS > 0 {
		burst := int(opts.PremiumRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.PremiumRPS), burst)
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		transports: transports,
		responses:  responses,
		ledger:     led,
		policies:   opts.Policies,
		limiter:    limiter,
		sleep:      opts.Sleep,
		validate:   validator.New(),
		log:        logger.Ensure(log),
	}
}

// Sleep waits d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BaseURL returns the upstream API root.
func (c *Client) BaseURL() string { return c.baseURL }

// Fetch returns the upstream body of url, serving repeat requests from the
// run cache without any staleness check.
func (c *Client) Fetch(ctx context.Context, url string, mode domain.Mode) ([]byte, error) {
	if body, ok := c.responses.Get(url); ok {
		return body, nil
	}

	tr, err := c.transports.TransportFor(mode)
	if err != nil {
		return nil, err
	}
	if err := tr.Ready(); err != nil {
		c.ledger.RecordError(url, err)
		return nil, err
	}
	policy, ok := c.policies[mode]
	if !ok {
		return nil, fmt.Errorf("no call policy for mode %q", mode)
	}

	body, err := c.getWithRetry(ctx, tr, url, mode, policy)
	if err != nil {
		c.ledger.RecordError(url, err)
		return nil, err
	}
	c.responses.Put(url, body)
	return body, nil
}

func (c *Client) getWithRetry(ctx context.Context, tr transport.Transport, url string, mode domain.Mode, policy CallPolicy) ([]byte, error) {
	retries := policy.MaxRetries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.RetryDelay), uint64(retries)), ctx)

	var (
		body    []byte
		attempt int
	)
	operation := func() error {
		attempt++
		if err := c.throttle(ctx, mode, policy); err != nil {
			return err
		}
		out, err := tr.Get(ctx, url)
		c.ledger.RecordRequest(err != nil)
		if err != nil {
			return err
		}
		body = out
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.log.WarnObj("upstream request failed; retrying", "request_retry", map[string]any{
			"url":      url,
			"mode":     string(mode),
			"attempt":  attempt,
			"wait_ms":  wait.Milliseconds(),
			"error":    err.Error(),
			"of_total": retries + 1,
		})
	}

	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		c.log.ErrorObj("upstream request exhausted retries", "request_error", map[string]any{
			"url":      url,
			"mode":     string(mode),
			"attempts": attempt,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("fetch %s after %d attempts: %w", url, attempt, err)
	}
	return body, nil
}

func (c *Client) throttle(ctx context.Context, mode domain.Mode, policy CallPolicy) error {
	delay := policy.Delay
	if policy.JitterMax > policy.JitterMin {
		delay += policy.JitterMin + time.Duration(rand.Int63n(int64(policy.JitterMax-policy.JitterMin)))
	} else {
		delay += policy.JitterMin
	}
	if err := c.sleep(ctx, delay); err != nil {
		return err
	}
	if mode == domain.ModePremium {
		return c.limiter.Wait(ctx)
	}
	return nil
}

// FetchInto fetches url and decodes it into dst, validating the result
// against its struct tags.
func (c *Client) FetchInto(ctx context.Context, url string, mode domain.Mode, dst any) error {
	body, err := c.Fetch(ctx, url, mode)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	if err := c.validate.Struct(dst); err != nil {
		return fmt.Errorf("validate %s: %w", url, err)
	}
	return nil
}
