// Package webhook implements the timestamped HMAC-SHA256 signature scheme used
// by payment provider notifications and a small retrying sender for replaying
// signed payloads against a receiver.
//
// # Signatures
//
// A signature header has the form
//
//	t=<unix seconds>,v1=<hex HMAC-SHA256(secret, "<t>.<raw body>")>
//
// and may carry several v1 values while a secret is rotated. Receivers verify
// the raw request body, byte for byte, before decoding it:
//
//	err := webhook.VerifySignature(secret, body, r.Header.Get("Stripe-Signature"),
//		webhook.DefaultTolerance, time.Now())
//	switch {
//	case errors.Is(err, webhook.ErrSignatureExpired):
//		// authentic but too old or too far in the future
//	case err != nil:
//		// forged, malformed, or the secret is not configured
//	}
//
// Comparison is constant-time. A zero tolerance disables the age check.
//
// # Sending
//
// Sender posts raw bytes and retries network errors, 5xx responses and
// 408/425/429, waiting at least as long as a Retry-After header asks. Other
// 4xx responses are returned immediately wrapped in ErrPermanentFailure. The
// replay tool uses it to feed recorded notifications to a running service.
//
//	sender := webhook.NewSender()
//	err := sender.Send(ctx, url, payload,
//		webhook.WithSignature("Stripe-Signature", secret),
//		webhook.WithExponentialRetry(5, time.Second, 30*time.Second),
//	)
package webhook
