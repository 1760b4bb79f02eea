// Package resolve turns a reasoning result into a typed value. A schema-bound
// object is preferred; otherwise the JSON span embedded in the text is parsed;
// otherwise the caller gets a Failed outcome carrying the raw text.
package resolve

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kaptinlin/jsonrepair"
)

// Kind tags how an Outcome was produced.
type Kind int

const (
	Failed Kind = iota
	Validated
	Extracted
)

func (k Kind) String() string {
	switch k {
	case Validated:
		return "validated"
	case Extracted:
		return "extracted"
	default:
		return "failed"
	}
}

// Raw is an unresolved execution result.
type Raw struct {
	// Object is the structured payload attached by the backend, if any.
	Object json.RawMessage
	Text   string
}

// Outcome is the tagged result of resolution. Value is meaningful for
// Validated and Extracted; Err and Raw describe a Failed outcome.
type Outcome[T any] struct {
	Kind  Kind
	Value T
	Raw   string
	Err   error
}

// Result unwraps the outcome, converting Failed into a *ParseError.
func (o Outcome[T]) Result() (T, error) {
	if o.Kind == Failed {
		var zero T
		return zero, &ParseError{Raw: o.Raw, Err: o.Err}
	}
	return o.Value, nil
}

// ParseError reports output that could not be resolved into the expected shape.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "unparseable agent output"
	}
	return fmt.Sprintf("unparseable agent output: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	errNoSpan = errors.New("no JSON span in output")
	validate  = validator.New(validator.WithRequiredStructEnabled())
)

// Resolve resolves raw into T. Slice types are extracted from the outermost
// [ ] span, everything else from the outermost { } span. Extracted values
// pass the same validation as a schema-bound object.
func Resolve[T any](raw Raw) Outcome[T] {
	text := raw.Text
	if text == "" && len(raw.Object) > 0 {
		text = string(raw.Object)
	}

	if v, err := fromObject[T](raw.Object); err == nil {
		return Outcome[T]{Kind: Validated, Value: v, Raw: text}
	}

	open, closing := byte('{'), byte('}')
	if isSlice[T]() {
		open, closing = '[', ']'
	}
	v, err := fromSpan[T](text, open, closing)
	if err != nil {
		return Outcome[T]{Kind: Failed, Raw: text, Err: err}
	}
	return Outcome[T]{Kind: Extracted, Value: v, Raw: text}
}

func fromObject[T any](obj json.RawMessage) (T, error) {
	var v T
	trimmed := bytes.TrimSpace(obj)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return v, errNoSpan
	}
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return v, err
	}
	if err := check(v); err != nil {
		return v, err
	}
	return v, nil
}

func fromSpan[T any](text string, open, closing byte) (T, error) {
	var v T
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, closing)
	if start < 0 || end <= start {
		return v, errNoSpan
	}
	span := text[start : end+1]
	err := json.Unmarshal([]byte(span), &v)
	if err != nil {
		repaired, rerr := jsonrepair.JSONRepair(span)
		if rerr != nil {
			return v, fmt.Errorf("parse span: %w", err)
		}
		var fixed T
		if err := json.Unmarshal([]byte(repaired), &fixed); err != nil {
			return v, fmt.Errorf("parse repaired span: %w", err)
		}
		v = fixed
	}
	if err := check(v); err != nil {
		return v, fmt.Errorf("validate span: %w", err)
	}
	return v, nil
}

func check(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return errNoSpan
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		return validate.Struct(rv.Interface())
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Struct {
			return validate.Var(rv.Interface(), "dive")
		}
	}
	return nil
}

func isSlice[T any]() bool {
	t := reflect.TypeOf((*T)(nil)).Elem()
	return t.Kind() == reflect.Slice || t.Kind() == reflect.Array
}
