// Package phone canonicalizes phone-like strings so differently formatted
// renderings of one number compare equal.
package phone

import "strings"

// Normalize strips everything except digits, keeping a single leading '+'.
// "+1 (555) 123-4567" and "+1-555-123-4567" normalize identically.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	plus := false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			plus = true
		}
	}
	if plus {
		return "+" + b.String()
	}
	return b.String()
}

// Shaped reports whether s looks like a phone number: at least one digit
// and nothing beyond digits, '+', '-', '.', spaces and parentheses.
func Shaped(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == '-' || r == '.' || r == ' ' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits > 0
}

// Same reports whether two phone strings address the same handle: their
// normalized forms are equal, or one is the other with a leading
// country-calling-code prefix of up to three digits added. This is a
// formatting-tolerance heuristic, not number parsing; it only fires when
// the shorter form still has a plausible subscriber length.
func Same(a, b string) bool {
	na := strings.TrimPrefix(Normalize(a), "+")
	nb := strings.TrimPrefix(Normalize(b), "+")
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if len(na) < len(nb) {
		na, nb = nb, na
	}
	extra := len(na) - len(nb)
	if extra >= 1 && extra <= 3 && len(nb) >= 7 && strings.HasSuffix(na, nb) {
		return true
	}
	return false
}

// Variants returns the normalized spellings a stored handle might use for
// s, suitable for an IN filter at the query layer: the bare digit run,
// the '+'-prefixed run, and (for 10-digit local numbers) the
// country-code-1 forms.
func Variants(s string) []string {
	digits := strings.TrimPrefix(Normalize(s), "+")
	if digits == "" {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	add := func(v string) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	add(digits)
	add("+" + digits)
	if len(digits) == 10 {
		add("1" + digits)
		add("+1" + digits)
	}
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		add(digits[1:])
		add("+" + digits[1:])
	}
	return out
}
