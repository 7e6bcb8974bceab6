package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue replaces sensitive values in log lines.
const RedactedValue = "[REDACTED]"

// Keys whose values are identifiers or outcomes and are logged as given.
var plainKeys = map[string]struct{}{
	"component": {},
	"op":        {},
	"kind":      {},
	"hash":      {},
	"tx":        {},
	"wallet":    {},
	"module":    {},
	"signer":    {},
	"event":     {},
	"strategy":  {},
	"reason":    {},
	"error":     {},
}

func plainKey(key string) bool {
	_, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField returns an attribute for key that carries value only when key is
// a plain identifier key. Keystore paths and passphrase sources are masked.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || plainKey(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// RedactEndpoint masks the parts of an RPC URL that can carry credentials.
// Only the scheme and host survive.
func RedactEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return RedactedValue
	}
	var b strings.Builder
	b.WriteString(u.Scheme + "://")
	if u.User != nil {
		b.WriteString(RedactedValue + "@")
	}
	b.WriteString(u.Host)
	if strings.Trim(u.Path, "/") != "" {
		b.WriteString("/" + RedactedValue)
	}
	if u.RawQuery != "" {
		b.WriteString("?" + RedactedValue)
	}
	return b.String()
}

// EndpointField is MaskField for RPC URLs: the host stays readable.
func EndpointField(key, raw string) slog.Attr {
	return slog.String(key, RedactEndpoint(raw))
}
