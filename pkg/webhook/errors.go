package webhook

import "errors"

// Signature errors. ErrSignatureExpired is kept apart from the others so
// receivers can tell a replayed or delayed delivery from a forged one.
var (
	ErrMissingSecret      = errors.New("webhook signing secret is not configured")
	ErrMissingSignature   = errors.New("webhook signature header is missing")
	ErrMalformedSignature = errors.New("webhook signature header is malformed")
	ErrSignatureMismatch  = errors.New("webhook signature mismatch")
	ErrSignatureExpired   = errors.New("webhook signature timestamp outside tolerance")
)

// Delivery errors returned by Sender.
var (
	ErrDeliveryFailed   = errors.New("webhook delivery failed")
	ErrPermanentFailure = errors.New("permanent webhook failure")
	ErrTemporaryFailure = errors.New("temporary webhook failure")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
	ErrInvalidURL       = errors.New("invalid webhook URL")
	ErrTimeout          = errors.New("webhook request timeout")
)

// IsPermanent reports whether a delivery error will not go away by retrying.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentFailure) ||
		errors.Is(err, ErrInvalidURL) ||
		errors.Is(err, ErrInvalidPayload)
}
