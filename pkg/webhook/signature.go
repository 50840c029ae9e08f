package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is the maximum accepted age of a signature timestamp.
const DefaultTolerance = 5 * time.Minute

// Signature is a parsed "t=<unix>,v1=<hex>" header.
// Several v1 values may be present while a secret is being rotated.
type Signature struct {
	Timestamp time.Time
	Values    []string
}

// SignPayload computes the hex-encoded HMAC-SHA256 of "<unix ts>.<payload>".
func SignPayload(secret string, payload []byte, ts time.Time) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	if len(payload) == 0 {
		return "", fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}
	return computeSignature(secret, payload, ts.Unix()), nil
}

// SignatureHeader returns the full header value for payload signed at ts.
func SignatureHeader(secret string, payload []byte, ts time.Time) (string, error) {
	sig, err := SignPayload(secret, payload, ts)
	if err != nil {
		return "", err
	}
	return "t=" + strconv.FormatInt(ts.Unix(), 10) + ",v1=" + sig, nil
}

// ParseSignatureHeader splits a signature header into its timestamp and v1 values.
// Unknown keys (such as v0) are ignored.
func ParseSignatureHeader(header string) (Signature, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Signature{}, ErrMissingSignature
	}

	var (
		sig   Signature
		hasTS bool
	)
	for part := range strings.SplitSeq(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return Signature{}, fmt.Errorf("%w: %q", ErrMalformedSignature, part)
		}
		switch key {
		case "t":
			unix, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return Signature{}, errors.Join(ErrMalformedSignature, err)
			}
			sig.Timestamp = time.Unix(unix, 0)
			hasTS = true
		case "v1":
			if value != "" {
				sig.Values = append(sig.Values, value)
			}
		}
	}

	if !hasTS || len(sig.Values) == 0 {
		return Signature{}, fmt.Errorf("%w: timestamp and v1 signature are required", ErrMalformedSignature)
	}
	return sig, nil
}

// VerifySignature checks header against the exact raw payload bytes.
// The HMAC is verified before the timestamp so that an expired error is only
// reported for genuine deliveries. A zero tolerance disables the age check.
func VerifySignature(secret string, payload []byte, header string, tolerance time.Duration, now time.Time) error {
	if secret == "" {
		return ErrMissingSecret
	}
	sig, err := ParseSignatureHeader(header)
	if err != nil {
		return err
	}

	expected := []byte(computeSignature(secret, payload, sig.Timestamp.Unix()))
	matched := false
	for _, v := range sig.Values {
		if hmac.Equal(expected, []byte(v)) {
			matched = true
		}
	}
	if !matched {
		return ErrSignatureMismatch
	}

	if tolerance > 0 {
		age := now.Sub(sig.Timestamp)
		if age > tolerance || age < -tolerance {
			return fmt.Errorf("%w: signed %s ago", ErrSignatureExpired, age.Truncate(time.Second))
		}
	}
	return nil
}

func computeSignature(secret string, payload []byte, unix int64) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strconv.FormatInt(unix, 10)))
	h.Write([]byte{'.'})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
