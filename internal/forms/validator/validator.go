// Package validator checks flat field maps against per-field rules.
package validator

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Rule describes the checks applied to a single field. Zero values disable a
// check. Each check carries its own message; an empty message falls back to a
// default.
type Rule struct {
	Required        bool
	RequiredMessage string

	MinLength        int
	MinLengthMessage string

	MaxLength        int
	MaxLengthMessage string

	Pattern        *regexp.Regexp
	PatternMessage string

	Custom        func(value string) bool
	CustomMessage string
}

const (
	defaultRequiredMessage  = "Bu alan zorunludur"
	defaultMinLengthMessage = "Değer çok kısa"
	defaultMaxLengthMessage = "Değer çok uzun"
	defaultPatternMessage   = "Geçersiz format"
	defaultCustomMessage    = "Geçersiz değer"
)

// Rules is a rule set keyed by field name.
type Rules map[string]Rule

// Validate returns the failing fields with one message each and whether every
// field passed. Fields without a rule are never checked.
//
// An empty required field reports only its required message. Otherwise the
// length, pattern and custom checks run in that order and the last failing
// one wins.
func Validate(rules Rules, values map[string]string) (map[string]string, bool) {
	errs := make(map[string]string)
	for field, rule := range rules {
		if msg, failed := checkField(rule, values[field]); failed {
			errs[field] = msg
		}
	}
	return errs, len(errs) == 0
}

func checkField(rule Rule, value string) (string, bool) {
	if isEmpty(value) {
		// optional fields left blank skip the remaining checks
		if rule.Required {
			return orDefault(rule.RequiredMessage, defaultRequiredMessage), true
		}
		return "", false
	}

	var (
		msg    string
		failed bool
	)
	length := utf8.RuneCountInString(value)

	if rule.MinLength > 0 && length < rule.MinLength {
		msg, failed = orDefault(rule.MinLengthMessage, defaultMinLengthMessage), true
	}
	if rule.MaxLength > 0 && length > rule.MaxLength {
		msg, failed = orDefault(rule.MaxLengthMessage, defaultMaxLengthMessage), true
	}
	if rule.Pattern != nil && !rule.Pattern.MatchString(value) {
		msg, failed = orDefault(rule.PatternMessage, defaultPatternMessage), true
	}
	if rule.Custom != nil && !rule.Custom(value) {
		msg, failed = orDefault(rule.CustomMessage, defaultCustomMessage), true
	}
	return msg, failed
}

func isEmpty(value string) bool {
	return strings.TrimSpace(value) == ""
}

func orDefault(msg, fallback string) string {
	if msg == "" {
		return fallback
	}
	return msg
}

// Form holds a rule set together with the error state of the last run.
// It is not safe for concurrent use.
type Form struct {
	rules  Rules
	errors map[string]string
}

func NewForm(rules Rules) *Form {
	return &Form{rules: rules, errors: map[string]string{}}
}

// Validate replaces the current error state with the result for values.
func (f *Form) Validate(values map[string]string) bool {
	errs, ok := Validate(f.rules, values)
	f.errors = errs
	return ok
}

// ValidateField re-checks a single field and updates only its entry.
func (f *Form) ValidateField(field, value string) bool {
	rule, ok := f.rules[field]
	if !ok {
		return true
	}
	if msg, failed := checkField(rule, value); failed {
		f.errors[field] = msg
		return false
	}
	delete(f.errors, field)
	return true
}

// Errors returns a copy of the current error state.
func (f *Form) Errors() map[string]string {
	out := make(map[string]string, len(f.errors))
	for k, v := range f.errors {
		out[k] = v
	}
	return out
}

func (f *Form) Reset() {
	f.errors = map[string]string{}
}

// SetFieldError records an externally produced error, e.g. one returned by
// the server. An empty message clears the field.
func (f *Form) SetFieldError(field, message string) {
	if message == "" {
		delete(f.errors, field)
		return
	}
	f.errors[field] = message
}
