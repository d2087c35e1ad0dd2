package workflow

import (
	"errors"
	"strconv"
	"strings"
)

const (
	DefaultMaxSupply  int64 = 1000000
	DefaultTokenCount int64 = 1
)

// Image is the uploaded preview image of the token.
type Image struct {
	Filename string
	MimeType string
	Bytes    []byte
}

// Input is what a user submits for one mint run.
type Input struct {
	TokenName   string
	Description string
	Image       *Image
	// Supply is kept as raw text; see ParseSupply.
	Supply     string
	CustomerIP string
}

type ProjectHandle struct {
	ProjectUID string
}

type TokenHandle struct {
	NftUID string
}

type PaymentHandle struct {
	PayURL string
}

// ParseSupply reads the leading integer of raw the way JavaScript parseInt
// does: optional sign, a 0x prefix switches to hex, trailing text is ignored.
// Values beyond int64 are clamped instead of rounded. Empty, non-numeric or
// zero input yields fallback.
func ParseSupply(raw string, fallback int64) int64 {
	s := strings.TrimSpace(raw)
	sign := ""
	if s != "" && (s[0] == '+' || s[0] == '-') {
		sign, s = s[:1], s[1:]
	}
	base, isDigit := 10, isDecimal
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base, isDigit, s = 16, isHex, s[2:]
	}
	end := 0
	for end < len(s) && isDigit(s[end]) {
		end++
	}
	if end == 0 {
		return fallback
	}
	n, err := strconv.ParseInt(sign+s[:end], base, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return fallback
	}
	// On ErrRange n already holds the clamped bound.
	if n == 0 {
		return fallback
	}
	return n
}

func isDecimal(c byte) bool { return c >= '0' && c <= '9' }

func isHex(c byte) bool {
	return isDecimal(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
