package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	userAgent = "billingsync-replay/1"
	// maxErrorBody bounds how much of a rejection body ends up in the error.
	maxErrorBody = 200
	// maxRetryAfter caps a receiver supplied Retry-After.
	maxRetryAfter = 5 * time.Minute
)

// Sender posts raw notification bodies to a receiver, signing every attempt
// and retrying transient failures.
type Sender struct {
	client *http.Client
}

// NewSender creates a sender with its own connection pool.
func NewSender() *Sender {
	return &Sender{client: &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}}
}

// Send posts payload to target byte for byte, so the receiver verifies the
// signature over exactly what was signed. Each attempt is signed with a fresh
// timestamp. Network errors, 5xx and 408/425/429 are retried; other 4xx
// responses end the delivery with ErrPermanentFailure.
//
//	err := sender.Send(ctx, "http://localhost:8080/webhooks/billing", fixture,
//		webhook.WithSignature("Stripe-Signature", secret),
//		webhook.WithMaxRetries(5),
//	)
func (s *Sender) Send(ctx context.Context, target string, payload []byte, opts ...SendOption) error {
	if err := validate(target, payload); err != nil {
		return err
	}

	o := defaultSendOptions()
	for _, opt := range opts {
		opt(o)
	}
	client := s.client
	if o.httpClient != nil {
		client = o.httpClient
	}

	var last delivery
	for attempt := 1; attempt <= o.maxRetries+1; attempt++ {
		if attempt > 1 {
			wait := max(o.backoffStrategy.NextInterval(attempt-1), last.retryAfter)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		last = s.deliver(ctx, client, target, payload, o)
		last.result.Attempt = attempt
		if o.onDelivery != nil {
			o.onDelivery(last.result)
		}

		switch {
		case last.err == nil:
			return nil
		case last.permanent:
			return errors.Join(ErrPermanentFailure, last.err)
		case ctx.Err() != nil:
			return ctx.Err()
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrDeliveryFailed, o.maxRetries+1, last.err)
}

// delivery is the outcome of one attempt.
type delivery struct {
	result     DeliveryResult
	err        error
	permanent  bool
	retryAfter time.Duration
}

func (s *Sender) deliver(ctx context.Context, client *http.Client, target string, payload []byte, o *sendOptions) (d delivery) {
	start := time.Now()
	defer func() {
		d.result.Duration = time.Since(start)
		d.result.Error = d.err
	}()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		d.err, d.permanent = err, true
		return d
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}
	if o.signer != nil {
		sig, err := o.signer(payload, o.now())
		if err != nil {
			d.err, d.permanent = fmt.Errorf("sign payload: %w", err), true
			return d
		}
		req.Header.Set(o.signatureHeader, sig)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			d.err = errors.Join(ErrTimeout, err)
		} else {
			d.err = errors.Join(ErrTemporaryFailure, err)
		}
		return d
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	d.result.StatusCode = resp.StatusCode
	d.result.Body = body
	d.result.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
	if d.result.Success {
		return d
	}

	d.err = fmt.Errorf("receiver answered %d%s", resp.StatusCode, excerpt(body))
	d.permanent = isPermanentError(resp.StatusCode)
	d.retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	return d
}

func validate(target string, payload []byte) error {
	u, err := url.Parse(target)
	switch {
	case target == "":
		return fmt.Errorf("%w: URL is required", ErrInvalidURL)
	case err != nil:
		return errors.Join(ErrInvalidURL, err)
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	case u.Host == "":
		return fmt.Errorf("%w: host is required", ErrInvalidURL)
	case len(payload) == 0:
		return fmt.Errorf("%w: payload is empty", ErrInvalidPayload)
	}
	return nil
}

// isPermanentError reports 4xx responses other than the ones that ask the
// sender to come back later.
func isPermanentError(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return status >= 400 && status < 500
}

// parseRetryAfter understands the delay-seconds form only.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}

func excerpt(body []byte) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	if s == "" {
		return ""
	}
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return ": " + s
}
