package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const stripeTolerance = 5 * time.Minute

func computeHMAC(secret string, parts ...[]byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	for _, p := range parts {
		mac.Write(p)
	}
	return mac.Sum(nil)
}

// SignBody returns the hex HMAC-SHA256 of body, the scheme used by komoju and
// by a dummy provider that has a signature header configured.
func SignBody(secret string, body []byte) string {
	return hex.EncodeToString(computeHMAC(secret, body))
}

func verifyBodySignature(secret, signature string, body []byte) error {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return errors.Wrap(ErrInvalidSignature, "signature is not hex")
	}
	if !hmac.Equal(got, computeHMAC(secret, body)) {
		return ErrInvalidSignature
	}
	return nil
}

// SignStripe builds a Stripe-Signature header value for body at ts.
func SignStripe(secret string, ts time.Time, body []byte) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	sig := hex.EncodeToString(computeHMAC(secret, []byte(t), []byte("."), body))
	return "t=" + t + ",v1=" + sig
}

// verifyStripeSignature accepts a header of the form "t=<unix>,v1=<hex>[,v1=<hex>]".
func verifyStripeSignature(secret, header string, body []byte, now time.Time) error {
	var (
		ts         string
		signatures [][]byte
	)
	for _, item := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts = value
		case "v1":
			if sig, err := hex.DecodeString(value); err == nil {
				signatures = append(signatures, sig)
			}
		}
	}
	if ts == "" || len(signatures) == 0 {
		return errors.Wrap(ErrInvalidSignature, "signature header is incomplete")
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return errors.Wrap(ErrInvalidSignature, "bad timestamp")
	}
	age := now.Sub(time.Unix(unix, 0))
	if age > stripeTolerance || age < -stripeTolerance {
		return errors.Wrap(ErrInvalidSignature, "timestamp outside tolerance")
	}

	expected := computeHMAC(secret, []byte(ts), []byte("."), body)
	for _, sig := range signatures {
		if hmac.Equal(sig, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}
