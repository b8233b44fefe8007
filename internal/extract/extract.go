// Package extract turns heterogeneous raw payloads into normalized purchase data.
package extract

import (
	"encoding/json"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/jimbolo/convtrack/internal/match"
	"github.com/jimbolo/convtrack/pkg/models"
)

// MinPopulatedFields is the least number of fields a usable record carries.
const MinPopulatedFields = 2

// Raw is a raw payload variant accepted by the Extractor.
type Raw interface {
	isRaw()
}

// Object is an already-structured payload, e.g. a decoded JSON object or a
// custom event detail.
type Object map[string]any

// Text is a string payload: JSON text when it parses as a JSON object,
// otherwise free text.
type Text string

// Form is a submitted form field set.
type Form url.Values

// HTML is a markup fragment or document.
type HTML string

// Record is data that has already been normalized.
type Record struct{ Data *models.PurchaseData }

func (Object) isRaw() {}
func (Text) isRaw()   {}
func (Form) isRaw()   {}
func (HTML) isRaw()   {}
func (Record) isRaw() {}

// Field aliases, tried in order. Exact key matches win over substring matches.
var (
	orderIDKeys  = []string{"order_id", "transaction_id", "orderId", "transactionId"}
	valueKeys    = []string{"total", "amount", "value", "price", "cost"}
	currencyKeys = []string{"currency", "curr"}
	itemsKeys    = []string{"items", "products", "line_items"}
)

// Extractor normalizes raw payloads into PurchaseData.
type Extractor struct {
	matcher *match.Matcher
}

// New creates an Extractor. The matcher decides which form fields are kept.
func New(m *match.Matcher) *Extractor {
	return &Extractor{matcher: m}
}

// Extract returns the normalized record for raw, or nil when fewer than
// MinPopulatedFields fields could be populated.
func (e *Extractor) Extract(raw Raw) *models.PurchaseData {
	data := e.normalize(raw)
	if data.PopulatedFields() < MinPopulatedFields {
		return nil
	}
	return data
}

// ExtractDetail is Extract for payloads the page hands over explicitly, such
// as custom event details and submitted forms. A record carrying only an
// order ID is kept.
func (e *Extractor) ExtractDetail(raw Raw) *models.PurchaseData {
	data := e.normalize(raw)
	if data == nil {
		return nil
	}
	if data.OrderID == "" && data.PopulatedFields() < MinPopulatedFields {
		return nil
	}
	return data
}

func (e *Extractor) normalize(raw Raw) *models.PurchaseData {
	var data *models.PurchaseData
	switch v := raw.(type) {
	case nil:
		return nil
	case Object:
		data = fromObject(v)
	case Text:
		data = e.fromText(string(v))
	case Form:
		data = e.fromForm(url.Values(v))
	case HTML:
		data = FromDocument(string(v))
	case Record:
		data = v.Data
	}
	return data
}

// Classify wraps an arbitrary decoded value into the matching Raw variant.
func Classify(v any) Raw {
	switch t := v.(type) {
	case nil:
		return nil
	case Raw:
		return t
	case map[string]any:
		return Object(t)
	case string:
		return Text(t)
	case []byte:
		return Text(string(t))
	case url.Values:
		return Form(t)
	case *models.PurchaseData:
		return Record{Data: t}
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		var obj map[string]any
		if err := json.Unmarshal(b, &obj); err != nil {
			return nil
		}
		return Object(obj)
	}
}

func (e *Extractor) fromText(s string) *models.PurchaseData {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
		obj, ok := parsed.(map[string]any)
		if !ok {
			return nil
		}
		return fromObject(obj)
	}
	return FromFreeText(s)
}

// fromForm keeps the fields whose name mentions a purchase keyword or a
// known alias, then resolves them like an object.
func (e *Extractor) fromForm(fields url.Values) *models.PurchaseData {
	obj := make(map[string]any)
	for name, values := range fields {
		if len(values) == 0 {
			continue
		}
		if e.matcher.ContainsKeyword(name) || isAlias(name) {
			obj[name] = values[0]
		}
	}
	return fromObject(obj)
}

func fromObject(obj map[string]any) *models.PurchaseData {
	if len(obj) == 0 {
		return nil
	}
	data := &models.PurchaseData{}
	if v, ok := lookup(obj, orderIDKeys); ok {
		data.OrderID = toOrderID(v)
	}
	if v, ok := lookup(obj, valueKeys); ok {
		data.Value = toValue(v)
	}
	if v, ok := lookup(obj, currencyKeys); ok {
		if s, isStr := v.(string); isStr {
			data.Currency = strings.TrimSpace(s)
		}
	}
	if v, ok := lookup(obj, itemsKeys); ok {
		data.Items = toItems(v)
	}
	return data
}

// lookup tries every alias as an exact key, then falls back to a
// case-insensitive substring match over the object's keys.
func lookup(obj map[string]any, aliases []string) (any, bool) {
	for _, alias := range aliases {
		if v, ok := obj[alias]; ok && v != nil {
			return v, true
		}
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, alias := range aliases {
		needle := strings.ToLower(alias)
		for _, k := range keys {
			if obj[k] != nil && strings.Contains(strings.ToLower(k), needle) {
				return obj[k], true
			}
		}
	}
	return nil, false
}

func isAlias(name string) bool {
	lower := strings.ToLower(name)
	for _, group := range [][]string{orderIDKeys, valueKeys, currencyKeys, itemsKeys} {
		for _, alias := range group {
			if strings.Contains(lower, strings.ToLower(alias)) {
				return true
			}
		}
	}
	return false
}

func toOrderID(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

func toValue(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(t))
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func toItems(v any) []any {
	if items, ok := v.([]any); ok {
		return items
	}
	return []any{v}
}
