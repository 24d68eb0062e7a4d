package klaviyo

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Unknown is reported for a category or product name the event does not carry.
const Unknown = "Unknown"

// Event property keys written by the store integration on "Placed Order" events.
const (
	PropValue             = "$value"
	PropDiscounted        = "Discounted"
	PropProductCategories = "ProductCategories"
	PropProductNames      = "ProductNames"
	PropItemCount         = "ItemCount"
)

// Properties is the free-form event_properties bag of an event. All accessors
// tolerate missing keys and unexpected types and fall back to a documented
// default instead of failing.
type Properties map[string]any

// Value returns the order value, or 0 when absent or not numeric.
func (p Properties) Value() float64 {
	v, _ := number(p[PropValue])
	return v
}

// Discounted reports whether the discount flag is present and truthy: true,
// a non-zero number, a non-empty string or any non-nil container.
func (p Properties) Discounted() bool {
	return truthy(p[PropDiscounted])
}

// FirstCategory returns the first product category, or Unknown.
func (p Properties) FirstCategory() string {
	return first(p[PropProductCategories])
}

// FirstProductName returns the first product name, or Unknown.
func (p Properties) FirstProductName() string {
	return first(p[PropProductNames])
}

// ItemCount returns the explicit item count when it is a non-zero number,
// otherwise the number of product names when that is a list, otherwise 1.
func (p Properties) ItemCount() int {
	if n, ok := number(p[PropItemCount]); ok && n != 0 {
		return int(n)
	}
	if names, ok := list(p[PropProductNames]); ok {
		return len(names)
	}
	return 1
}

func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != ""
	}
	if n, ok := number(v); ok {
		return n != 0
	}
	return true
}

func list(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func first(v any) string {
	items, ok := list(v)
	if !ok || len(items) == 0 || items[0] == nil {
		return Unknown
	}
	if s, ok := items[0].(string); ok {
		return s
	}
	return fmt.Sprint(items[0])
}
