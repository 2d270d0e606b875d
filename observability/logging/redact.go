package logging

import (
	"log/slog"
	"strings"
)

// Borrower addresses and transaction hashes are pseudonymous but still count
// as customer identifiers for log retention purposes, so log lines shorten
// them instead of emitting the full value.

// ShortAddress renders a 0x-prefixed address or hash as 0xabcd…ef12.
func ShortAddress(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) <= 12 {
		return trimmed
	}
	return trimmed[:6] + "…" + trimmed[len(trimmed)-4:]
}

// Address returns a slog.Attr carrying the shortened form of an address.
func Address(key, value string) slog.Attr {
	return slog.String(key, ShortAddress(value))
}
