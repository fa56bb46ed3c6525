// Package formerr carries per-field and form-level validation messages from
// services back to the page that submitted the form.
package formerr

import (
	"errors"
	"sort"
	"strings"
)

// Errors is a set of validation messages. Field messages are keyed by the
// submitted form field name; Form holds messages that apply to the whole
// form, such as scheduling conflicts.
type Errors struct {
	Fields map[string][]string `json:"fields,omitempty"`
	Form   []string            `json:"form,omitempty"`
}

// Field returns an Errors with a single field message.
func Field(field, msg string) *Errors {
	return new(Errors).Add(field, msg)
}

// Form returns an Errors with a single form-level message.
func Form(msg string) *Errors {
	return new(Errors).AddForm(msg)
}

func (e *Errors) Add(field, msg string) *Errors {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
	return e
}

func (e *Errors) AddForm(msg string) *Errors {
	e.Form = append(e.Form, msg)
	return e
}

// Empty reports whether no message has been recorded.
func (e *Errors) Empty() bool {
	return e == nil || (len(e.Fields) == 0 && len(e.Form) == 0)
}

// Err returns e as an error, or nil when it holds no messages.
func (e *Errors) Err() error {
	if e.Empty() {
		return nil
	}
	return e
}

// Error lists form messages first, then field messages in field order.
func (e *Errors) Error() string {
	var parts []string
	parts = append(parts, e.Form...)

	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		for _, msg := range e.Fields[f] {
			parts = append(parts, f+": "+msg)
		}
	}
	return strings.Join(parts, "; ")
}

// Carrier is implemented by domain errors that render as form messages.
type Carrier interface {
	FormErrors() *Errors
}

// As extracts validation messages from an error chain, either an *Errors
// or any error implementing Carrier.
func As(err error) (*Errors, bool) {
	var fe *Errors
	if errors.As(err, &fe) {
		return fe, true
	}
	var carrier Carrier
	if errors.As(err, &carrier) {
		return carrier.FormErrors(), true
	}
	return nil, false
}
