package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":     {},
	"env":         {},
	"run_id":      {},
	"message":     {},
	"severity":    {},
	"timestamp":   {},
	"error":       {},
	"reason":      {},
	"address":     {},
	"destination": {},
	"amount":      {},
	"tx_hash":     {},
}

// IsAllowlisted reports whether the provided key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// MaskField returns a slog.Attr that redacts the supplied value unless the key is
// explicitly allowlisted.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskKey shortens a private key to its first six and last four characters so
// operators can tell keys apart without the secret reaching the log.
func MaskKey(key string) string {
	trimmed := strings.TrimSpace(key)
	if len(trimmed) < 12 {
		return "****"
	}
	return trimmed[:6] + "…" + trimmed[len(trimmed)-4:]
}

// Truncate keeps the first n characters of a long hex value such as a
// signature component.
func Truncate(value string, n int) string {
	if n <= 0 || len(value) <= n {
		return value
	}
	return value[:n] + "…"
}
