// Package httporigin implements metacache.Origin against the public content
// API and the launcher metadata service.
package httporigin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/unkn0wn-root/metacache"
	"github.com/unkn0wn-root/metacache/origin/permit"
)

const (
	DefaultAPIURL    = "https://api.modrinth.com/v2/"
	DefaultAPIv3URL  = "https://api.modrinth.com/v3/"
	DefaultMetaURL   = "https://launcher-meta.modrinth.com/"
	DefaultUserAgent = "metacache/1 (+https://github.com/unkn0wn-root/metacache)"

	DefaultRetries   = 2
	DefaultBatchSize = 800
	DefaultTimeout   = 30 * time.Second
)

var (
	// ErrOffline is returned while the origin is fenced off after repeated failures.
	ErrOffline = errors.New("httporigin: origin unavailable")
	ErrStatus  = errors.New("httporigin: unexpected status")
)

// StatusError is a non-2xx response that was not retried or ran out of retries.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string // first bytes of the response body
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httporigin: %s %s: status %d", e.Method, e.URL, e.Code)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

type Options struct {
	APIURL    string // v2 API base; "" => DefaultAPIURL
	APIv3URL  string // v3 API base; "" => DefaultAPIv3URL
	MetaURL   string // launcher metadata base; "" => DefaultMetaURL
	UserAgent string

	Timeout      time.Duration // per attempt; 0 => DefaultTimeout
	Retries      int           // 0 => DefaultRetries; <0 => no retries
	RetryWaitMin time.Duration // 0 => retryablehttp default
	RetryWaitMax time.Duration
	BatchSize    int // ids per bulk request; 0 => DefaultBatchSize

	Permit     *permit.Permit   // nil => unbounded
	Logger     metacache.Logger // nil => NopLogger
	HTTPClient *http.Client     // nil => pooled client with Timeout
}

// Origin is safe for concurrent use.
type Origin struct {
	c      *retryablehttp.Client
	api    string
	v3     string
	meta   string
	ua     string
	batch  int
	permit *permit.Permit
	fence  *fence
	log    metacache.Logger
}

var _ metacache.Origin = (*Origin)(nil)

func New(opts Options) *Origin {
	o := &Origin{
		api:    withSlash(coalesce(opts.APIURL, DefaultAPIURL)),
		v3:     withSlash(coalesce(opts.APIv3URL, DefaultAPIv3URL)),
		meta:   withSlash(coalesce(opts.MetaURL, DefaultMetaURL)),
		ua:     coalesce(opts.UserAgent, DefaultUserAgent),
		batch:  opts.BatchSize,
		permit: opts.Permit,
		fence:  newFence(),
		log:    opts.Logger,
	}
	if o.batch <= 0 {
		o.batch = DefaultBatchSize
	}
	if o.log == nil {
		o.log = metacache.NopLogger{}
	}

	c := retryablehttp.NewClient()
	c.Logger = leveled{o.log}
	switch {
	case opts.Retries < 0:
		c.RetryMax = 0
	case opts.Retries == 0:
		c.RetryMax = DefaultRetries
	default:
		c.RetryMax = opts.Retries
	}
	if opts.RetryWaitMin > 0 {
		c.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		c.RetryWaitMax = opts.RetryWaitMax
	}
	if opts.HTTPClient != nil {
		c.HTTPClient = opts.HTTPClient
	} else {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.HTTPClient.Timeout = timeout
	}
	c.CheckRetry = o.checkRetry
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	o.c = c
	return o
}

// Offline reports whether requests are currently refused.
func (o *Origin) Offline() bool { return o.fence.blocked() }

// checkRetry feeds every attempt into the fence and stops retrying once it closes.
func (o *Origin) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() == nil && (err != nil || (resp != nil && resp.StatusCode >= http.StatusInternalServerError)) {
		o.fence.fail()
	}
	retry, cerr := retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	if retry && o.fence.blocked() {
		return false, ErrOffline
	}
	return retry, cerr
}

func (o *Origin) getJSON(ctx context.Context, url string, out any) error {
	return o.do(ctx, http.MethodGet, url, nil, out)
}

func (o *Origin) postJSON(ctx context.Context, url string, body, out any) error {
	return o.do(ctx, http.MethodPost, url, body, out)
}

func (o *Origin) do(ctx context.Context, method, url string, body, out any) error {
	if o.fence.blocked() {
		return ErrOffline
	}
	release, err := o.permit.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	var rb any
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("httporigin: encode %s body: %w", url, err)
		}
		rb = bytes.NewReader(b)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, rb)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", o.ua)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := o.c.Do(req)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, URL: url, Code: resp.StatusCode, Body: string(snippet)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("httporigin: decode %s: %w", url, err)
	}
	o.fence.ok()
	return nil
}

func withSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

func coalesce(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
