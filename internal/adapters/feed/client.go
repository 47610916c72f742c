// Package feed talks to a brand's external transaction provider and maps its
// records onto the canonical transaction shape.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"loyalty/internal/domain/brand"
)

// Provider protocol constants.
const (
	ModuleGetAllTransactions = "/transactions/getAllTransactions"
	StatusSuccess            = "SUCCESS"

	maxResponseBytes = 32 << 20
)

// Request describes one fetch of a brand's window.
type Request struct {
	BrandID     string
	Endpoint    string
	AccessID    string
	AccessToken string
	Window      brand.Window
	Timeout     time.Duration // per attempt
	Retries     int           // extra attempts after the first
	RetryDelay  time.Duration
}

// RequestFor builds a Request from a brand's settings and current window.
func RequestFor(b brand.Brand) Request {
	s := b.Settings.WithDefaults()
	return Request{
		BrandID:     b.ID,
		Endpoint:    s.Endpoint,
		AccessID:    s.AccessID,
		AccessToken: s.AccessToken,
		Window:      b.Window,
		Timeout:     s.Timeout(),
		Retries:     s.Retries,
		RetryDelay:  s.RetryDelay(),
	}
}

// Metadata carries the provider's aggregate figures for the window.
type Metadata struct {
	TotalCount   int64
	TotalPage    int64
	TotalAmount  decimal.Decimal
	TotalDeposit decimal.Decimal
	NetDeposit   decimal.Decimal
}

// Result is a successful fetch. Records are kept verbatim for the transformer.
type Result struct {
	Transactions []json.RawMessage
	Metadata     Metadata
	Attempts     int
}

// ProviderError is returned once every attempt has failed.
// The brand is failed for this run; nothing is retried until the next run.
type ProviderError struct {
	BrandID    string
	Attempts   int
	StatusCode int // last HTTP status, 0 when no response was received
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider fetch for brand %s failed after %d attempt(s): %s", e.BrandID, e.Attempts, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// attemptError is the failure of a single attempt.
type attemptError struct {
	statusCode int
	message    string
	err        error
}

func (e *attemptError) Error() string { return e.message }

func (e *attemptError) Unwrap() error { return e.err }

// Doer is the subset of *http.Client the feed client needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches transaction windows from provider endpoints.
type Client struct {
	doer Doer
}

// NewClient creates a feed client. A nil doer uses a default *http.Client;
// per-attempt timeouts come from the request context, not the client.
func NewClient(doer Doer) *Client {
	if doer == nil {
		doer = &http.Client{}
	}
	return &Client{doer: doer}
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Transactions []json.RawMessage `json:"transactions"`
		TotalCount   lenientDecimal    `json:"totalCount"`
		TotalAmount  lenientDecimal    `json:"totalAmount"`
		TotalPage    lenientDecimal    `json:"totalPage"`
		TotalDeposit lenientDecimal    `json:"totalDeposit"`
		NetDeposit   lenientDecimal    `json:"netDeposit"`
	} `json:"data"`
}

// lenientDecimal accepts numbers and numeric strings; anything else decodes as zero.
// A malformed total must not fail the fetch.
type lenientDecimal struct {
	decimal.Decimal
}

func (l *lenientDecimal) UnmarshalJSON(data []byte) error {
	d, err := decimalFromJSON(data)
	if err != nil {
		l.Decimal = decimal.Zero
		return nil
	}
	l.Decimal = d
	return nil
}

// Fetch requests one window, retrying failed attempts with a fixed delay.
// PRE: req.Endpoint and credentials are set
// POST: on success, Result holds every record in provider order
// POST: on failure, Result has no records and the error is a *ProviderError
func (c *Client) Fetch(ctx context.Context, req Request) (Result, error) {
	retries := req.Retries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(req.RetryDelay), uint64(retries)),
		ctx,
	)

	var result Result
	var last *attemptError
	attempts := 0
	operation := func() error {
		attempts++
		res, err := c.fetchOnce(ctx, req)
		if err != nil {
			var ae *attemptError
			if !errors.As(err, &ae) {
				ae = &attemptError{message: err.Error(), err: err}
			}
			last = ae
			return err
		}
		result = res
		return nil
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("feed_event", "event", "fetch_attempt_failed",
			"brand_id", req.BrandID, "attempt", attempts, "retry_in_ms", wait.Milliseconds(), "error", err)
	}

	err := backoff.RetryNotify(operation, policy, notify)
	if err == nil {
		result.Attempts = attempts
		return result, nil
	}

	pe := &ProviderError{BrandID: req.BrandID, Attempts: attempts, Err: err}
	if last != nil {
		pe.StatusCode = last.statusCode
		pe.Message = last.message
	}
	if ctx.Err() != nil {
		pe.Err = ctx.Err()
		if pe.Message == "" {
			pe.Message = ctx.Err().Error()
		}
	}
	if pe.Message == "" {
		pe.Message = err.Error()
	}
	return Result{Transactions: []json.RawMessage{}}, pe
}

// fetchOnce performs a single bounded attempt.
func (c *Client) fetchOnce(ctx context.Context, req Request) (Result, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	form := url.Values{}
	form.Set("accessId", req.AccessID)
	form.Set("module", ModuleGetAllTransactions)
	form.Set("accessToken", req.AccessToken)
	form.Set("sDate", req.Window.Start)
	form.Set("eDate", req.Window.End)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, backoff.Permanent(&attemptError{message: fmt.Sprintf("build request: %v", err), err: err})
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(httpReq)
	if err != nil {
		return Result{}, &attemptError{message: fmt.Sprintf("request failed: %v", err), err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, &attemptError{statusCode: resp.StatusCode, message: fmt.Sprintf("read body: %v", err), err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &attemptError{
			statusCode: resp.StatusCode,
			message:    fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode),
		}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Result{}, &attemptError{statusCode: resp.StatusCode, message: fmt.Sprintf("decode response: %v", err), err: err}
	}
	if env.Status != StatusSuccess {
		msg := env.Message
		if msg == "" {
			msg = "no message"
		}
		return Result{}, &attemptError{
			statusCode: resp.StatusCode,
			message:    fmt.Sprintf("provider status %q: %s", env.Status, msg),
		}
	}

	records := env.Data.Transactions
	if records == nil {
		records = []json.RawMessage{}
	}
	return Result{
		Transactions: records,
		Metadata: Metadata{
			TotalCount:   env.Data.TotalCount.Decimal.IntPart(),
			TotalPage:    env.Data.TotalPage.Decimal.IntPart(),
			TotalAmount:  env.Data.TotalAmount.Decimal,
			TotalDeposit: env.Data.TotalDeposit.Decimal,
			NetDeposit:   env.Data.NetDeposit.Decimal,
		},
	}, nil
}
