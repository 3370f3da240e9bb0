package codec

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"beegreen/internal/models"
)

// Tolerant fallback for envelopes whose inner array was published with
// unescaped quotes, e.g. {"payload":"["0:8:0:60:62:1"]"}
var (
	malformedPayload = regexp.MustCompile(`(?s)payload\\?"\s*:\s*"?\s*\[(.*?)\]`)
	quotedItem       = regexp.MustCompile(`"([^"]*)"`)
)

// Key aliases accepted in object-shaped schedule entries
var (
	indexKeys   = []string{"index", "INDEX", "idx", "i"}
	hourKeys    = []string{"hour", "HOUR", "h"}
	minKeys     = []string{"min", "MIN", "minute", "m"}
	durKeys     = []string{"dur", "DUR", "duration", "d"}
	dowKeys     = []string{"dow", "DOW", "days"}
	enabledKeys = []string{"enabled", "ENABLED", "en", "e"}
)

// DecodeStatus reports whether a status payload says the device is online
func DecodeStatus(raw []byte) bool {
	return ExtractValue(raw) == "online"
}

// DecodeNextRun returns the device-reported next run time, or ""
func DecodeNextRun(raw []byte) string {
	return extractString(raw)
}

// DecodeVersion returns the firmware version string of a version payload
func DecodeVersion(raw []byte) string {
	return extractString(raw)
}

// DecodePumpStatus decodes an on/off pump payload. known is false when the
// value is in neither vocabulary.
func DecodePumpStatus(raw []byte) (on bool, known bool) {
	v := ExtractValue(raw)
	switch {
	case IsTruthy(v):
		return true, true
	case IsFalsy(v):
		return false, true
	}
	return false, false
}

// EncodeSchedule renders the canonical six field form index:hour:min:dur:dow:enabled
func EncodeSchedule(slot models.ScheduleSlot) string {
	en := 0
	if slot.Enabled {
		en = 1
	}
	return fmt.Sprintf("%d:%d:%d:%d:%d:%d", slot.Index, slot.Hour, slot.Min, slot.Dur, slot.Dow, en)
}

// DecodeScheduleList decodes a get_schedules_response payload. Any failure
// yields an empty list.
func DecodeScheduleList(raw []byte) []models.ScheduleSlot {
	slots, _ := DecodeScheduleResponse(raw)
	return slots
}

// DecodeScheduleResponse decodes a get_schedules_response payload and reports
// whether the payload had a usable shape. A well formed but empty array gives
// (nil, true); an undecodable payload gives (nil, false).
func DecodeScheduleResponse(raw []byte) ([]models.ScheduleSlot, bool) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, false
	}

	items, ok := scheduleItems(text)
	if !ok {
		items, ok = scrapeItems(text)
		if !ok && strings.Contains(text, ":") && !strings.ContainsAny(text, "{}[]") {
			items, ok = splitItems(text), true
		}
		if !ok {
			return nil, false
		}
	}

	slots := make([]models.ScheduleSlot, 0, len(items))
	for i, item := range items {
		slot, ok := decodeEntry(item, i)
		if !ok {
			continue
		}
		slots = append(slots, slot)
	}
	if len(items) > 0 && len(slots) == 0 {
		return nil, false
	}
	return slots, true
}

// scheduleItems walks the envelope down to the list of raw entries,
// unwrapping one level of string double-encoding.
func scheduleItems(text string) ([]any, bool) {
	var data any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, false
	}
	for depth := 0; depth < 3; depth++ {
		switch x := data.(type) {
		case []any:
			return x, true
		case map[string]any:
			v, ok := x["payload"]
			if !ok {
				return nil, false
			}
			data = v
		case string:
			inner := strings.TrimSpace(x)
			if inner == "" {
				return []any{}, true
			}
			var decoded any
			if err := json.Unmarshal([]byte(inner), &decoded); err != nil {
				// a bare "a:b:c:d:e" list without brackets
				if strings.Contains(inner, ":") {
					return splitItems(inner), true
				}
				return nil, false
			}
			data = decoded
		default:
			return nil, false
		}
	}
	return nil, false
}

func scrapeItems(text string) ([]any, bool) {
	m := malformedPayload.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	body := strings.ReplaceAll(m[1], `\"`, `"`)
	if strings.TrimSpace(body) == "" {
		return []any{}, true
	}
	quoted := quotedItem.FindAllStringSubmatch(body, -1)
	if len(quoted) == 0 {
		return splitItems(body), true
	}
	items := make([]any, 0, len(quoted))
	for _, q := range quoted {
		items = append(items, q[1])
	}
	return items, true
}

func splitItems(body string) []any {
	parts := strings.Split(body, ",")
	items := make([]any, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"\`)
		if p != "" {
			items = append(items, p)
		}
	}
	return items
}

func decodeEntry(item any, position int) (models.ScheduleSlot, bool) {
	switch x := item.(type) {
	case string:
		return decodeColonEntry(x)
	case map[string]any:
		return decodeObjectEntry(x, position)
	}
	return models.ScheduleSlot{}, false
}

func decodeColonEntry(s string) (models.ScheduleSlot, bool) {
	fields := strings.Split(strings.TrimSpace(s), ":")
	if len(fields) != 5 && len(fields) != 6 {
		return models.ScheduleSlot{}, false
	}
	var nums [5]int
	for i := 0; i < 5; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(fields[i]))
		if err != nil {
			return models.ScheduleSlot{}, false
		}
		nums[i] = n
	}
	slot := models.ScheduleSlot{
		Index:   nums[0],
		Hour:    nums[1],
		Min:     nums[2],
		Dur:     nums[3],
		Dow:     nums[4],
		Enabled: true,
	}
	if len(fields) == 6 {
		flag := strings.ToLower(strings.TrimSpace(fields[5]))
		switch {
		case IsTruthy(flag):
			slot.Enabled = true
		case IsFalsy(flag):
			slot.Enabled = false
		default:
			return models.ScheduleSlot{}, false
		}
	}
	return slot, slot.Valid()
}

func decodeObjectEntry(obj map[string]any, position int) (models.ScheduleSlot, bool) {
	slot := models.ScheduleSlot{Enabled: true}
	idx, ok := intField(obj, indexKeys)
	if !ok {
		idx = position
	}
	slot.Index = idx
	var okH, okM, okD bool
	slot.Hour, okH = intField(obj, hourKeys)
	slot.Min, okM = intField(obj, minKeys)
	slot.Dur, okD = intField(obj, durKeys)
	if !okH || !okM || !okD {
		return models.ScheduleSlot{}, false
	}
	if dow, ok := intField(obj, dowKeys); ok {
		slot.Dow = dow
	}
	for _, k := range enabledKeys {
		if v, ok := obj[k]; ok {
			slot.Enabled = IsTruthy(normalize(v))
			break
		}
	}
	return slot, slot.Valid()
}

func intField(obj map[string]any, keys []string) (int, bool) {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			continue
		}
		switch x := v.(type) {
		case float64:
			return int(x), x == float64(int(x))
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(x))
			return n, err == nil
		}
		return 0, false
	}
	return 0, false
}
