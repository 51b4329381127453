package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/node"
	"github.com/sctg-development/rust-photoacoustic-sub001/pkg/retry"
)

// httpDriver POSTs measurement and alert documents to a callback URL.
// Transient failures are retried with exponential backoff inside the
// delivery call; the action stage never retries on its own.
type httpDriver struct {
	url         string
	authHeader  string
	client      *http.Client
	retryConfig retry.Config
	logger      *slog.Logger
	stats       stats
}

func newHTTPDriver(params map[string]any, deps node.Dependencies) (Driver, error) {
	url, err := node.StringParam(params, "url")
	if err != nil {
		return nil, err
	}
	authHeader, err := node.OptionalStringParam(params, "auth_header", "")
	if err != nil {
		return nil, err
	}
	timeoutMS, err := node.OptionalIntParam(params, "timeout_ms", 5000)
	if err != nil {
		return nil, err
	}
	if timeoutMS <= 0 {
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: timeout_ms must be positive", errors.ErrInvalidConfig),
			"http_driver", "create", "checking timeout")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &httpDriver{
		url:        url,
		authHeader: authHeader,
		client: &http.Client{
			Timeout: time.Duration(timeoutMS) * time.Millisecond,
		},
		retryConfig: errors.DefaultRetryPolicy().ToRetryConfig(),
		logger:      logger.With("driver", KindHTTP),
	}, nil
}

func (d *httpDriver) Initialize(context.Context) error { return nil }

func (d *httpDriver) UpdateAction(ctx context.Context, m Measurement) error {
	return d.post(ctx, "measurement", m)
}

func (d *httpDriver) ShowAlert(ctx context.Context, a Alert) error {
	return d.post(ctx, "alert", a)
}

func (d *httpDriver) ClearAction(ctx context.Context) error {
	return d.post(ctx, "clear", map[string]any{
		"cleared_at": time.Now().UTC(),
	})
}

// post wraps the payload in an envelope naming the event and delivers it
// with retries. Non-2xx responses below 500 are not retried: the request
// is malformed or rejected, not transient.
func (d *httpDriver) post(ctx context.Context, event string, payload any) error {
	body, err := json.Marshal(map[string]any{"event": event, "payload": payload})
	if err != nil {
		d.stats.recordFailure()
		return errors.WrapDriver(err, "http_driver", "post", "marshaling payload")
	}

	err = retry.Do(ctx, d.retryConfig, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
		if err != nil {
			return retry.NonRetryable(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if d.authHeader != "" {
			req.Header.Set("Authorization", d.authHeader)
		}

		resp, err := d.client.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		respErr := fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
		if resp.StatusCode >= 500 {
			return respErr
		}
		return retry.NonRetryable(respErr)
	})
	if err != nil {
		d.stats.recordFailure()
		return errors.WrapDriver(err, "http_driver", "post", fmt.Sprintf("delivering %s", event))
	}

	d.stats.recordSuccess()
	return nil
}

func (d *httpDriver) Status() Status {
	status := Status{
		Kind:    KindHTTP,
		Details: map[string]any{"url": d.url},
	}
	d.stats.fill(&status)
	status.Healthy = status.Failures == 0 || !status.LastDelivery.IsZero()
	return status
}

func (d *httpDriver) Shutdown(context.Context) error {
	d.client.CloseIdleConnections()
	return nil
}
