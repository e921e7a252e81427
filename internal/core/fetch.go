package core

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/ratelimit"

	"github.com/edward-yakop/go-iotc/internal/misc"
)

const (
	DefaultTimeout   = 5 * time.Minute
	DefaultRetries   = 5
	DefaultRetryWait = 5 * time.Second

	partSuffix = ".part"
	userAgent  = "go-iotc"
)

var (
	log = misc.NewLogger("Fetch", 2)
)

// HTTPError is returned for any response outside 2xx.
type HTTPError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error %d:%s [%s]", e.StatusCode, e.Status, e.URL)
}

// Temporary reports whether a later attempt may succeed.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

type Option func(*HTTPDownload)

func WithTimeout(timeout time.Duration) Option {
	return func(h *HTTPDownload) {
		h.client.SetTimeout(timeout)
	}
}

// WithRetries sets how many times a failed attempt is repeated. Zero means a single attempt.
func WithRetries(retries int) Option {
	return func(h *HTTPDownload) {
		h.retries = retries
	}
}

// WithRetryWait sets the first backoff interval, later ones grow exponentially.
func WithRetryWait(wait time.Duration) Option {
	return func(h *HTTPDownload) {
		h.retryWait = wait
	}
}

// WithRate limits requests to perSecond. Zero or less disables the limit.
// A context cancelled while waiting for a slot is only noticed once the slot is granted.
func WithRate(perSecond int) Option {
	return func(h *HTTPDownload) {
		if perSecond > 0 {
			h.limiter = ratelimit.New(perSecond)
		} else {
			h.limiter = ratelimit.NewUnlimited()
		}
	}
}

type HTTPDownload struct {
	client    *resty.Client
	retries   int
	retryWait time.Duration
	limiter   ratelimit.Limiter
}

var _ Downloader = &HTTPDownload{}

func NewDownloader(opts ...Option) *HTTPDownload {
	client := resty.New().
		SetTimeout(DefaultTimeout).
		SetHeader("User-Agent", userAgent).
		SetLogger(restyLogger{log})

	h := &HTTPDownload{
		client:    client,
		retries:   DefaultRetries,
		retryWait: DefaultRetryWait,
		limiter:   ratelimit.NewUnlimited(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTPDownload) Download(ctx context.Context, URL string, toFilePath string) (result Result, err error) {
	attempt := 0
	op := func() error {
		attempt++
		var aerr error
		result, aerr = h.attempt(ctx, URL, toFilePath)
		if aerr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		var httpErr *HTTPError
		if errors.As(aerr, &httpErr) && !httpErr.Temporary() {
			return backoff.Permanent(aerr)
		}
		return aerr
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("[%d] Download %s failed, retry in %v: %v.", attempt, URL, wait, err)
	}

	err = backoff.RetryNotify(op, h.backOff(ctx), notify)
	if err != nil {
		log.Error("Download %s failed after %d attempt(s): %v.", URL, attempt, err)
	}
	return
}

func (h *HTTPDownload) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.retryWait
	b.MaxElapsedTime = 0

	retries := h.retries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

func (h *HTTPDownload) attempt(ctx context.Context, URL string, toFilePath string) (result Result, err error) {
	if err = ctx.Err(); err != nil {
		return
	}
	h.limiter.Take()
	if err = ctx.Err(); err != nil {
		return
	}

	resp, err := h.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(URL)
	if err != nil {
		err = errors.Wrap(err, "GET ["+URL+"] failed")
		return
	}

	body := resp.RawBody()
	defer func() {
		_ = body.Close()
	}()

	result.StatusCode = resp.StatusCode()
	if !resp.IsSuccess() {
		err = &HTTPError{URL: URL, StatusCode: resp.StatusCode(), Status: resp.Status()}
		return
	}

	result.Size, err = h.saveBodyToDisk(body, toFilePath)
	return
}

// saveBodyToDisk streams body next to path and renames it into place once complete.
func (h *HTTPDownload) saveBodyToDisk(body io.Reader, path string) (filesize int64, err error) {
	if err = misc.EnsureDir(filepath.Dir(path)); err != nil {
		return
	}

	part := path + partSuffix
	f, err := os.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		err = errors.Wrap(err, "Create file ["+part+"] failed")
		return
	}
	defer func() {
		if err != nil {
			_ = os.Remove(part)
		}
	}()

	filesize, err = io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		err = errors.Wrap(err, "Saving ["+path+"] failed")
		return
	}

	if err = os.Rename(part, path); err != nil {
		err = errors.Wrap(err, "Move ["+part+"] into place failed")
	}
	return
}

type restyLogger struct {
	l misc.Logger
}

func (r restyLogger) Errorf(format string, v ...interface{}) {
	r.l.Error(format, v...)
}

func (r restyLogger) Warnf(format string, v ...interface{}) {
	r.l.Warn(format, v...)
}

func (r restyLogger) Debugf(format string, v ...interface{}) {
	r.l.Trace(format, v...)
}
