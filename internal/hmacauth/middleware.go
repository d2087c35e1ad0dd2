package hmacauth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	DefaultSignatureHeader = "X-Mint-Signature"
	DefaultTimestampHeader = "X-Mint-Timestamp"
)

var (
	ErrMissingSignature = errors.New("missing request signature")
	ErrMissingTimestamp = errors.New("missing request timestamp")
	ErrStaleTimestamp   = errors.New("stale request timestamp")
	ErrInvalidSignature = errors.New("invalid request signature")
	ErrBodyTooLarge     = errors.New("request body too large")
)

// Verifier checks HMAC-SHA256 signatures over timestamp+body on mint
// submissions. An empty Secret disables verification.
type Verifier struct {
	Secret          string
	MaxSkew         time.Duration
	MaxBodyBytes    int64
	SignatureHeader string
	TimestampHeader string
	Now             func() time.Time
}

func (v *Verifier) Enabled() bool { return v != nil && v.Secret != "" }

func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !v.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		if err := v.verify(r); err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, ErrBodyTooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			http.Error(w, err.Error(), status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (v *Verifier) verify(r *http.Request) error {
	sig := r.Header.Get(v.SignatureHeaderName())
	if sig == "" {
		return ErrMissingSignature
	}
	tsHeader := r.Header.Get(v.TimestampHeaderName())
	if tsHeader == "" {
		return ErrMissingTimestamp
	}
	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return ErrMissingTimestamp
	}

	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	reqTime := time.Unix(ts, 0)
	if now.Sub(reqTime) > v.MaxSkew || reqTime.Sub(now) > v.MaxSkew {
		return ErrStaleTimestamp
	}

	body, err := v.readBody(r)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(Sign(v.Secret, tsHeader, body)), []byte(sig)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the lowercase hex signature a client must send.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// readBody buffers the body so the handler can parse it again.
func (v *Verifier) readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return []byte{}, nil
	}
	defer r.Body.Close()

	reader := io.Reader(r.Body)
	if v.MaxBodyBytes > 0 {
		reader = io.LimitReader(r.Body, v.MaxBodyBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if v.MaxBodyBytes > 0 && int64(len(body)) > v.MaxBodyBytes {
		return nil, ErrBodyTooLarge
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// SignatureHeaderName returns the configured signature header or the default.
func (v *Verifier) SignatureHeaderName() string {
	if v.SignatureHeader != "" {
		return v.SignatureHeader
	}
	return DefaultSignatureHeader
}

func (v *Verifier) TimestampHeaderName() string {
	if v.TimestampHeader != "" {
		return v.TimestampHeader
	}
	return DefaultTimestampHeader
}
