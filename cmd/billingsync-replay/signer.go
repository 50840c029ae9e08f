package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/billingsync/pkg/subscription"
	"github.com/dmitrymomot/billingsync/pkg/webhook"
)

func signerFor(provider, secret string) (webhook.SendOption, error) {
	switch strings.ToLower(provider) {
	case subscription.ProviderStripe:
		return webhook.WithSignature(subscription.StripeSignatureHeader, secret), nil
	case subscription.ProviderPaddle:
		return webhook.WithSigner(subscription.PaddleSignatureHeader, paddleSigner(secret)), nil
	}
	return nil, fmt.Errorf("%w: unknown provider %q", errUsage, provider)
}

// paddleSigner produces "ts=<unix>;h1=<hex hmac-sha256 of ts:body>".
func paddleSigner(secret string) webhook.Signer {
	return func(payload []byte, at time.Time) (string, error) {
		ts := strconv.FormatInt(at.Unix(), 10)
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(ts))
		mac.Write([]byte{':'})
		mac.Write(payload)
		return "ts=" + ts + ";h1=" + hex.EncodeToString(mac.Sum(nil)), nil
	}
}
