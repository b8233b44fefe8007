// Package match holds the rules signal sources use to decide whether an
// occurrence is possibly purchase related.
package match

import (
	"encoding/json"
	"strings"
	"sync/atomic"
)

// paymentFieldTerms mark a form field as payment related.
var paymentFieldTerms = []string{"card", "payment", "billing", "checkout"}

// Rules is an immutable set of lower-cased matching rules.
type Rules struct {
	Endpoints []string
	Keywords  []string
}

// Matcher evaluates purchase rules. Rules can be swapped at runtime.
type Matcher struct {
	rules atomic.Pointer[Rules]
}

// New creates a Matcher for the given endpoint fragments and keywords.
func New(endpoints, keywords []string) *Matcher {
	m := &Matcher{}
	m.Update(endpoints, keywords)
	return m
}

// Update replaces the rules used by subsequent matches.
func (m *Matcher) Update(endpoints, keywords []string) {
	m.rules.Store(&Rules{Endpoints: lowerAll(endpoints), Keywords: lowerAll(keywords)})
}

// Rules returns the current rule set.
func (m *Matcher) Rules() Rules {
	return *m.rules.Load()
}

// IsPurchaseEndpoint reports whether rawURL contains a purchase path fragment.
func (m *Matcher) IsPurchaseEndpoint(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	return containsAny(strings.ToLower(rawURL), m.rules.Load().Endpoints)
}

// ContainsKeyword reports whether s contains any purchase keyword.
func (m *Matcher) ContainsKeyword(s string) bool {
	if s == "" {
		return false
	}
	return containsAny(strings.ToLower(s), m.rules.Load().Keywords)
}

// ContainsPurchaseData serializes non-string payloads to JSON and checks the
// result for purchase keywords.
func (m *Matcher) ContainsPurchaseData(payload any) bool {
	switch v := payload.(type) {
	case nil:
		return false
	case string:
		return m.ContainsKeyword(v)
	case []byte:
		return m.ContainsKeyword(string(v))
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return false
		}
		return m.ContainsKeyword(string(b))
	}
}

// IsPurchaseForm reports whether a submitted form is a purchase form: its
// action is a purchase endpoint, or a field name mentions a payment term.
func (m *Matcher) IsPurchaseForm(action string, fieldNames []string) bool {
	if m.IsPurchaseEndpoint(action) {
		return true
	}
	for _, name := range fieldNames {
		if containsAny(strings.ToLower(name), paymentFieldTerms) {
			return true
		}
	}
	return false
}

func containsAny(s string, fragments []string) bool {
	for _, f := range fragments {
		if f != "" && strings.Contains(s, f) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
