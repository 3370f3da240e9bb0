package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Fields checked in JSON envelopes, in priority order
var valueFields = []string{"payload", "value", "status", "state", "data"}

// Fields that may carry the publish time of a message
var timestampFields = []string{"timestamp", "time", "ts", "datetime", "date"}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
	"2006/01/02 15:04:05",
	"02-01-2006 15:04:05",
}

var truthy = map[string]bool{
	"1": true, "on": true, "true": true, "online": true,
	"connected": true, "started": true, "yes": true, "active": true,
}

var falsy = map[string]bool{
	"0": true, "off": true, "false": true, "offline": true,
	"disconnected": true, "stopped": true, "no": true, "inactive": true,
}

// envelopeValue parses text as JSON. Objects yield their first known value
// field; any other JSON value is returned as is. isJSON is false when the
// text is not JSON at all.
func envelopeValue(text string) (v any, isJSON, found bool) {
	var data any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, false, false
	}
	obj, ok := data.(map[string]any)
	if !ok {
		return data, true, true
	}
	for _, field := range valueFields {
		if v, ok := obj[field]; ok {
			return v, true, true
		}
	}
	return nil, true, false
}

func normalize(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(x)
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return strings.ToLower(strings.TrimSpace(x))
	default:
		return strings.ToLower(fmt.Sprint(x))
	}
}

// ExtractValue returns the lowercased value carried by a payload: the first
// known envelope field of a JSON object, a bare JSON value, or the trimmed
// plain text.
func ExtractValue(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return ""
	}
	v, _, found := envelopeValue(text)
	if found {
		return normalize(v)
	}
	return strings.ToLower(text)
}

// extractString behaves like ExtractValue but keeps the original case and
// returns "" for JSON objects without a known value field.
func extractString(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return ""
	}
	v, isJSON, found := envelopeValue(text)
	if !isJSON {
		return text
	}
	if !found {
		return ""
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case nil:
		return ""
	default:
		return normalize(x)
	}
}

// IsTruthy reports whether a normalised value means on/online
func IsTruthy(value string) bool {
	return truthy[value]
}

// IsFalsy reports whether a normalised value means off/offline
func IsFalsy(value string) bool {
	return falsy[value]
}

// ParseTimestamp extracts the publish time of an enveloped payload
func ParseTimestamp(raw []byte) (time.Time, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(raw))), &obj); err != nil {
		return time.Time{}, false
	}
	for _, field := range timestampFields {
		v, ok := obj[field]
		if !ok {
			continue
		}
		switch x := v.(type) {
		case float64:
			sec := int64(x)
			nsec := int64((x - float64(sec)) * float64(time.Second))
			return time.Unix(sec, nsec), true
		case string:
			s := strings.TrimSpace(x)
			for _, layout := range timestampLayouts {
				if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
					return ts, true
				}
			}
		}
		return time.Time{}, false
	}
	return time.Time{}, false
}

// IsRecent reports whether a message is fresh enough to act on.
// Messages without a timestamp are treated as recent.
func IsRecent(ts time.Time, ok bool, maxAge time.Duration, now time.Time) bool {
	if !ok {
		return true
	}
	return now.Sub(ts) <= maxAge
}
