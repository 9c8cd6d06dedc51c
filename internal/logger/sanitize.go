package logger

import (
	"fmt"
	"regexp"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

var (
	signatureParamPattern = regexp.MustCompile(`(?i)([?&](?:sig|signature|token|x-amz-signature|x-amz-credential)=)[^&\s"]+`)
	bearerPattern         = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9\-_.]+`)
	secretPattern         = regexp.MustCompile(`(?i)(secret|password|private[_-]?key)[\s:=]+[^\s]+`)
)

var sensitiveKeys = []string{
	"token", "jwt", "authorization", "bearer",
	"secret", "password", "private_key",
}

// SanitizeMessage scrubs capability signatures, bearer tokens and inline
// secrets from free-form text such as URLs and error strings.
func SanitizeMessage(message string) string {
	message = signatureParamPattern.ReplaceAllString(message, "${1}"+redactedPlaceholder)
	message = bearerPattern.ReplaceAllString(message, "${1}"+redactedPlaceholder)
	message = secretPattern.ReplaceAllString(message, "${1}="+redactedPlaceholder)
	return message
}

func sanitizeKVs(kv []interface{}) []interface{} {
	if len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		key := toString(kv[i])
		out = append(out, key, sanitizeValue(strings.ToLower(strings.TrimSpace(key)), kv[i+1]))
	}
	return out
}

func sanitizeValue(key string, val interface{}) interface{} {
	if isSensitiveKey(key) {
		return redactedPlaceholder
	}
	switch v := val.(type) {
	case string:
		if looksLikeJWT(v) {
			return redactedPlaceholder
		}
		return SanitizeMessage(v)
	case error:
		return SanitizeMessage(v.Error())
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			out[k] = sanitizeValue(strings.ToLower(k), inner)
		}
		return out
	default:
		return val
	}
}

func isSensitiveKey(key string) bool {
	if key == "sig" || strings.HasSuffix(key, "_sig") {
		return true
	}
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(key, sensitive) {
			return true
		}
	}
	return false
}

func looksLikeJWT(s string) bool {
	parts := strings.Split(s, ".")
	return len(parts) == 3 && len(parts[0]) > 10 && len(parts[1]) > 10 && !strings.ContainsAny(s, " /")
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(v)
	}
}
