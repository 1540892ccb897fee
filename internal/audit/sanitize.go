package audit

import (
	"encoding/json"
	"strings"
)

const redacted = "[REDACTED]"

var sensitiveKeys = []string{"password", "token", "secret", "apikey", "privatekey"}

// sensitive reports whether key names a credential. Underscores and dashes are
// ignored so password_hash, api_key and private-key all match.
func sensitive(key string) bool {
	k := strings.ToLower(key)
	k = strings.NewReplacer("_", "", "-", "").Replace(k)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// Sanitize returns a copy of v with credential-like keys replaced at any depth.
func Sanitize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if sensitive(k) {
				out[k] = redacted
				continue
			}
			out[k] = Sanitize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Sanitize(val)
		}
		return out
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(t, &decoded); err != nil {
			return string(t)
		}
		return Sanitize(decoded)
	}
	return v
}

// snapshot marshals a sanitized state; nil in, nil out.
func snapshot(v map[string]any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(Sanitize(v))
	if err != nil {
		return nil
	}
	return b
}
