package remote

import (
	"encoding/json"
	"strings"
)

// Domain is a legacy search filter in prefix notation. Every constructor yields
// exactly one expression so domains compose freely; the empty Domain matches all.
type Domain []any

func Cond(field, op string, value any) Domain {
	return Domain{[]any{field, op, value}}
}

// Eq, In and NotIn are shorthands for the most common conditions.
func Eq(field string, value any) Domain { return Cond(field, "=", value) }

func In[T any](field string, values []T) Domain {
	if values == nil {
		values = []T{}
	}
	return Cond(field, "in", values)
}

func NotIn[T any](field string, values []T) Domain {
	if values == nil {
		values = []T{}
	}
	return Cond(field, "not in", values)
}

func And(parts ...Domain) Domain { return combine("&", parts) }

func Or(parts ...Domain) Domain { return combine("|", parts) }

func Not(d Domain) Domain {
	if len(d) == 0 {
		return d
	}
	return append(Domain{"!"}, d...)
}

func combine(op string, parts []Domain) Domain {
	var kept []Domain
	for _, p := range parts {
		if len(p) > 0 {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return Domain{}
	case 1:
		return kept[0]
	}
	out := make(Domain, 0, len(kept)*2)
	for i := 1; i < len(kept); i++ {
		out = append(out, op)
	}
	for _, p := range kept {
		out = append(out, p...)
	}
	return out
}

// ActiveAny matches archived and active records alike.
func ActiveAny() Domain {
	return Or(Eq("active", true), Eq("active", false))
}

func (d Domain) terms() []any {
	if d == nil {
		return []any{}
	}
	return []any(d)
}

// String renders the domain as the legacy system writes it, operators unescaped.
func (d Domain) String() string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d.terms()); err != nil {
		return "[]"
	}
	return strings.TrimSuffix(b.String(), "\n")
}
