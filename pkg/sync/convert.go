// Package sync implements the generic per-entity sync orchestration: window
// computation, incremental filtering, defensive transforms, idempotent
// storage, and the bounded per-scope fan-out.
package sync

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseMetaTime parses the datetime formats Graph actually emits:
// 2026-02-04T10:12:33Z, ...+0000, and ...+00:00. Returns zero time on
// anything else; transforms default instead of failing.
func ParseMetaTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}

	normalized := s
	if strings.HasSuffix(normalized, "Z") {
		normalized = strings.TrimSuffix(normalized, "Z") + "+00:00"
	} else if len(normalized) >= 5 {
		// +0000 -> +00:00
		if sign := normalized[len(normalized)-5]; (sign == '+' || sign == '-') && normalized[len(normalized)-3] != ':' {
			normalized = normalized[:len(normalized)-2] + ":" + normalized[len(normalized)-2:]
		}
	}

	t, err := time.Parse("2006-01-02T15:04:05-07:00", normalized)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// ParseDate parses a YYYY-MM-DD insight bucket date.
func ParseDate(s string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Str returns the item field as a string, "" when absent or non-string.
func Str(item map[string]interface{}, key string) string {
	if v, ok := item[key].(string); ok {
		return v
	}
	return ""
}

// StrOrNil returns the field as an interface for storage: the string value,
// or nil when absent/empty so coalesce-on-update keeps the stored value.
func StrOrNil(item map[string]interface{}, key string) interface{} {
	if s := Str(item, key); s != "" {
		return s
	}
	return nil
}

// ToInt64 parses a value best-effort to int64. Graph sends numerics as
// strings as often as numbers.
func ToInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	case string:
		if x == "" {
			return 0, false
		}
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

// IntOr parses best-effort with a default.
func IntOr(v interface{}, def int64) int64 {
	if n, ok := ToInt64(v); ok {
		return n
	}
	return def
}

// ToFloat parses a value best-effort to float64.
func ToFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case string:
		if x == "" {
			return 0, false
		}
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// FloatOrNil returns the parsed float for storage, nil on failure.
func FloatOrNil(v interface{}) interface{} {
	if f, ok := ToFloat(v); ok {
		return f
	}
	return nil
}

// currencyExponent maps currency codes to their minor-unit exponent.
// Graph reports money amounts in minor units.
var currencyExponent = map[string]int{
	"JPY": 0, "KRW": 0,
	"KWD": 3, "BHD": 3, "JOD": 3,
}

// NormalizeMoney converts a minor-unit amount to major units for the given
// currency, rounded to the currency's precision. Returns nil when the raw
// value does not parse.
func NormalizeMoney(raw interface{}, currency string) interface{} {
	v, ok := ToFloat(raw)
	if !ok {
		return nil
	}

	exp, found := currencyExponent[strings.ToUpper(currency)]
	if !found {
		exp = 2
	}
	divisor := math.Pow10(exp)
	major := v / divisor
	return math.Round(major*divisor) / divisor
}

// DatePresetForDays maps a lookback window to the largest Graph date_preset
// not exceeding it. Lossy but safe: a 45-day request degrades to last_30d.
func DatePresetForDays(days int) string {
	switch {
	case days <= 1:
		return "today"
	case days <= 7:
		return "last_7d"
	case days <= 14:
		return "last_14d"
	case days <= 28:
		return "last_28d"
	case days <= 30:
		return "last_30d"
	case days <= 90:
		return "last_90d"
	default:
		return "last_30d"
	}
}

// preferredActionTypes ranks the action counters used as a results fallback,
// highest business value first.
var preferredActionTypes = []string{
	"onsite_conversion.messaging_conversation_started_7d",
	"messaging_conversation_started_7d",
	"lead",
	"purchase",
	"omni_purchase",
	"link_click",
	"landing_page_view",
}

// PickResults resolves the results metric and cost-per-result for one
// insight row. The direct "results" field wins; otherwise the ranked action
// types are tried in order; otherwise all action counters are summed.
// Cost-per-result is derived from spend when the API omits it.
func PickResults(row map[string]interface{}) (int64, interface{}) {
	results := IntOr(row["results"], 0)
	cpr := FloatOrNil(row["cost_per_result"])

	spend, _ := ToFloat(row["spend"])

	if results <= 0 {
		actionMap := make(map[string]int64)
		if actions, ok := row["actions"].([]interface{}); ok {
			for _, a := range actions {
				action, ok := a.(map[string]interface{})
				if !ok {
					continue
				}
				at := Str(action, "action_type")
				if at == "" {
					continue
				}
				actionMap[at] = IntOr(action["value"], 0)
			}
		}

		for _, at := range preferredActionTypes {
			if v, ok := actionMap[at]; ok && v > 0 {
				results = v
				break
			}
		}

		if results <= 0 {
			for _, v := range actionMap {
				results += v
			}
		}
	}

	if cpr == nil && results > 0 && spend > 0 {
		cpr = math.Round(spend/float64(results)*100) / 100
	}

	return results, cpr
}

// NormalizeMediaType maps vendor media types onto the posts enum
// (IMAGE, VIDEO, REEL, STORY). Unknown types map to nil.
func NormalizeMediaType(raw string) interface{} {
	switch strings.ToUpper(raw) {
	case "REEL":
		return "REEL"
	case "STORY":
		return "STORY"
	case "VIDEO", "IGTV":
		return "VIDEO"
	case "IMAGE", "PHOTO", "CAROUSEL_ALBUM":
		return "IMAGE"
	default:
		return nil
	}
}

// RealStatus derives the two-state campaign status from effective_status.
func RealStatus(effectiveStatus string) interface{} {
	if effectiveStatus == "" {
		return nil
	}
	if strings.EqualFold(effectiveStatus, "ACTIVE") {
		return "ACTIVE"
	}
	return "PAUSED"
}

// ActPath renders the account-scoped endpoint path.
func ActPath(accountID int64, suffix string) string {
	return fmt.Sprintf("act_%d/%s", accountID, suffix)
}
