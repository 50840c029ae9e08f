package webhook

import (
	"net/http"
	"time"
)

// DeliveryResult describes one delivery attempt.
type DeliveryResult struct {
	Attempt    int // 1-based
	Success    bool
	StatusCode int // Zero when no response arrived
	Duration   time.Duration
	Body       []byte // Response body, truncated to 64 KiB
	Error      error
}

// DeliveryHook observes every attempt, successful or not.
type DeliveryHook func(result DeliveryResult)

type sendOptions struct {
	timeout         time.Duration
	headers         map[string]string
	httpClient      *http.Client
	maxRetries      int
	backoffStrategy BackoffStrategy
	signatureHeader string
	signer          Signer
	now             func() time.Time
	onDelivery      DeliveryHook
}

func defaultSendOptions() *sendOptions {
	return &sendOptions{
		timeout:         10 * time.Second,
		headers:         map[string]string{},
		maxRetries:      3,
		backoffStrategy: DefaultBackoffStrategy(),
		now:             time.Now,
	}
}

// SendOption configures a single Send call.
type SendOption func(*sendOptions)

// WithTimeout bounds each attempt. Default 10s.
func WithTimeout(timeout time.Duration) SendOption {
	return func(o *sendOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithHeader sets an extra request header, e.g. X-Request-ID.
func WithHeader(key, value string) SendOption {
	return func(o *sendOptions) {
		if key != "" && value != "" {
			o.headers[key] = value
		}
	}
}

// WithMaxRetries sets how many times a failed attempt is repeated. Default 3.
func WithMaxRetries(n int) SendOption {
	return func(o *sendOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithBackoff sets the delay between attempts.
func WithBackoff(strategy BackoffStrategy) SendOption {
	return func(o *sendOptions) {
		if strategy != nil {
			o.backoffStrategy = strategy
		}
	}
}

// Signer produces a signature header value for payload sent at ts.
type Signer func(payload []byte, ts time.Time) (string, error)

// WithSignature signs every attempt with secret and puts the
// "t=<unix>,v1=<hex>" value into the named header.
func WithSignature(header, secret string) SendOption {
	return WithSigner(header, func(payload []byte, ts time.Time) (string, error) {
		return SignatureHeader(secret, payload, ts)
	})
}

// WithSigner signs every attempt with a custom scheme, e.g. a provider's own
// header format.
func WithSigner(header string, signer Signer) SendOption {
	return func(o *sendOptions) {
		if header != "" && signer != nil {
			o.signatureHeader = header
			o.signer = signer
		}
	}
}

// WithSigningClock overrides the clock used for signature timestamps.
// Useful for producing deliberately stale deliveries.
func WithSigningClock(now func() time.Time) SendOption {
	return func(o *sendOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithHTTPClient replaces the sender's client for this call.
func WithHTTPClient(client *http.Client) SendOption {
	return func(o *sendOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithOnDelivery registers a hook called after every attempt.
func WithOnDelivery(hook DeliveryHook) SendOption {
	return func(o *sendOptions) {
		o.onDelivery = hook
	}
}

// WithExponentialRetry retries up to attempts times, doubling the delay from
// initialInterval up to maxInterval with 10% jitter.
func WithExponentialRetry(attempts int, initialInterval, maxInterval time.Duration) SendOption {
	return func(o *sendOptions) {
		o.maxRetries = attempts
		o.backoffStrategy = ExponentialBackoff{
			InitialInterval: initialInterval,
			MaxInterval:     maxInterval,
			Multiplier:      2,
			JitterFactor:    0.1,
		}
	}
}

// WithNoRetry makes a single attempt.
func WithNoRetry() SendOption {
	return func(o *sendOptions) {
		o.maxRetries = 0
	}
}
