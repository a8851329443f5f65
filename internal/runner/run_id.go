package runner

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"
)

const testIDSuffixBytes = 4

// NewTestID returns "<prefix>-<timestamp>-<hex>" so repeated runs of the same
// experiment get distinct tests.
func NewTestID(prefix string, now time.Time) (string, error) {
	return NewTestIDWithRand(prefix, now, rand.Reader)
}

// NewTestIDWithRand is NewTestID with an explicit entropy source.
func NewTestIDWithRand(prefix string, now time.Time, r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("random reader is nil")
	}
	buf := make([]byte, testIDSuffixBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return FormatTestID(prefix, now, hex.EncodeToString(buf)), nil
}

// FormatTestID joins the parts of a generated test id.
func FormatTestID(prefix string, now time.Time, suffix string) string {
	id := now.UTC().Format("20060102T150405Z") + "-" + suffix
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
