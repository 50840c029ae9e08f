package webhook_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingsync/pkg/webhook"
)

const testSecret = "whsec_test"

func TestSignPayload(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"id":"evt_1"}`)
	ts := time.Unix(1700000000, 0)

	sig, err := webhook.SignPayload(testSecret, payload, ts)
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte("1700000000." + string(payload)))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), sig)

	header, err := webhook.SignatureHeader(testSecret, payload, ts)
	require.NoError(t, err)
	assert.Equal(t, "t=1700000000,v1="+sig, header)

	_, err = webhook.SignPayload("", payload, ts)
	assert.ErrorIs(t, err, webhook.ErrMissingSecret)

	_, err = webhook.SignPayload(testSecret, nil, ts)
	assert.ErrorIs(t, err, webhook.ErrInvalidPayload)
}

func TestParseSignatureHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  string
		want    webhook.Signature
		wantErr error
	}{
		{
			name:   "single signature",
			header: "t=1700000000,v1=abc",
			want:   webhook.Signature{Timestamp: time.Unix(1700000000, 0), Values: []string{"abc"}},
		},
		{
			name:   "rotated secrets and legacy scheme",
			header: "t=1700000000, v1=abc, v1=def, v0=old",
			want:   webhook.Signature{Timestamp: time.Unix(1700000000, 0), Values: []string{"abc", "def"}},
		},
		{name: "empty", header: "  ", wantErr: webhook.ErrMissingSignature},
		{name: "no timestamp", header: "v1=abc", wantErr: webhook.ErrMalformedSignature},
		{name: "no v1", header: "t=1700000000,v0=abc", wantErr: webhook.ErrMalformedSignature},
		{name: "bad timestamp", header: "t=yesterday,v1=abc", wantErr: webhook.ErrMalformedSignature},
		{name: "garbage", header: "not-a-signature", wantErr: webhook.ErrMalformedSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := webhook.ParseSignatureHeader(tt.header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Timestamp.Equal(got.Timestamp))
			assert.Equal(t, tt.want.Values, got.Values)
		})
	}
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"id":"evt_1","type":"invoice.payment_failed"}`)
	signedAt := time.Unix(1700000000, 0)
	valid, err := webhook.SignatureHeader(testSecret, payload, signedAt)
	require.NoError(t, err)
	validSig, err := webhook.SignPayload(testSecret, payload, signedAt)
	require.NoError(t, err)

	tests := []struct {
		name      string
		secret    string
		payload   []byte
		header    string
		tolerance time.Duration
		now       time.Time
		wantErr   error
	}{
		{
			name:      "valid",
			secret:    testSecret,
			payload:   payload,
			header:    valid,
			tolerance: 5 * time.Minute,
			now:       signedAt.Add(time.Minute),
		},
		{
			name:      "one of rotated signatures matches",
			secret:    testSecret,
			payload:   payload,
			header:    fmt.Sprintf("t=%d,v1=%s,v1=%s", signedAt.Unix(), "deadbeef", validSig),
			tolerance: 5 * time.Minute,
			now:       signedAt,
		},
		{
			name:      "tampered payload",
			secret:    testSecret,
			payload:   []byte(`{"id":"evt_1","type":"invoice.payment_succeeded"}`),
			header:    valid,
			tolerance: 5 * time.Minute,
			now:       signedAt,
			wantErr:   webhook.ErrSignatureMismatch,
		},
		{
			name:      "wrong secret",
			secret:    "whsec_other",
			payload:   payload,
			header:    valid,
			tolerance: 5 * time.Minute,
			now:       signedAt,
			wantErr:   webhook.ErrSignatureMismatch,
		},
		{
			name:      "too old",
			secret:    testSecret,
			payload:   payload,
			header:    valid,
			tolerance: 5 * time.Minute,
			now:       signedAt.Add(6 * time.Minute),
			wantErr:   webhook.ErrSignatureExpired,
		},
		{
			name:      "too far in the future",
			secret:    testSecret,
			payload:   payload,
			header:    valid,
			tolerance: 5 * time.Minute,
			now:       signedAt.Add(-6 * time.Minute),
			wantErr:   webhook.ErrSignatureExpired,
		},
		{
			name:    "zero tolerance disables age check",
			secret:  testSecret,
			payload: payload,
			header:  valid,
			now:     signedAt.Add(240 * time.Hour),
		},
		{
			name:    "missing secret fails closed",
			payload: payload,
			header:  valid,
			now:     signedAt,
			wantErr: webhook.ErrMissingSecret,
		},
		{
			name:    "missing header",
			secret:  testSecret,
			payload: payload,
			now:     signedAt,
			wantErr: webhook.ErrMissingSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := webhook.VerifySignature(tt.secret, tt.payload, tt.header, tt.tolerance, tt.now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}
