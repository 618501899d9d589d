// Package username decides whether a candidate username satisfies the
// signup policy and reports every rule it violates.
//
// Character classes are plain ASCII ranges, so non-ASCII uppercase letters,
// digits or symbols never satisfy a rule. Candidates are not normalised
// here; callers trim input first.
package username

import (
	"strings"
	"unicode/utf8"
)

const (
	// MinLength is the minimum number of characters (code points).
	MinLength = 5

	// SpecialCharacters is the literal set accepted by the special rule.
	SpecialCharacters = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`
)

// Messages reported for each failed rule, in rule order. Callers show them
// verbatim.
const (
	MsgTooShort    = "Username must be at least 5 characters long"
	MsgNoUppercase = "Username must contain at least 1 uppercase letter"
	MsgNoDigit     = "Username must contain at least 1 number"
	MsgNoSpecial   = "Username must contain at least 1 special character"
)

type (
	// Rule is a named predicate plus the message reported when it fails.
	Rule struct {
		Name    string
		Message string
		Check   func(candidate string) bool
	}

	// Result is the outcome of applying every rule to one candidate.
	// Valid is true iff Errors is empty.
	Result struct {
		Valid  bool     `json:"isValid"`
		Errors []string `json:"errors"`
	}
)

var rules = []Rule{
	{Name: "length", Message: MsgTooShort, Check: hasMinLength},
	{Name: "uppercase", Message: MsgNoUppercase, Check: func(s string) bool { return containsByteIn(s, 'A', 'Z') }},
	{Name: "digit", Message: MsgNoDigit, Check: func(s string) bool { return containsByteIn(s, '0', '9') }},
	{Name: "special", Message: MsgNoSpecial, Check: func(s string) bool { return strings.ContainsAny(s, SpecialCharacters) }},
}

// Rules returns the policy in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Validate applies every rule to candidate, in order, without stopping at
// the first failure. It never fails; any string, including the empty one,
// yields a Result.
func Validate(candidate string) Result {
	res := Result{Errors: []string{}}
	for _, r := range rules {
		if !r.Check(candidate) {
			res.Errors = append(res.Errors, r.Message)
		}
	}
	res.Valid = len(res.Errors) == 0
	return res
}

// Failed returns the names of the rules candidate violates, in order.
func Failed(candidate string) []string {
	var names []string
	for _, r := range rules {
		if !r.Check(candidate) {
			names = append(names, r.Name)
		}
	}
	return names
}

func hasMinLength(s string) bool {
	return utf8.RuneCountInString(s) >= MinLength
}

// containsByteIn scans raw bytes: multi-byte UTF-8 sequences only use bytes
// >= 0x80, so they can never match an ASCII range.
func containsByteIn(s string, lo, hi byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= lo && s[i] <= hi {
			return true
		}
	}
	return false
}
