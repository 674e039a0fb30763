package config

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// bracePattern matches ${name}.
	bracePattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

	// dollarPattern matches $name up to a word boundary, so $run does not
	// match inside $runNumber.
	dollarPattern = regexp.MustCompile(`\$([a-zA-Z_][a-zA-Z0-9_]*)(?:\b|$)`)
)

// MissingAction specifies how to handle missing variables.
type MissingAction int

const (
	// MissingKeep leaves the placeholder as-is. This is the default.
	MissingKeep MissingAction = iota

	// MissingEmpty replaces the placeholder with an empty string.
	MissingEmpty

	// MissingError returns an UndefinedVariableError.
	MissingError
)

// ExpandOption configures an Expander.
type ExpandOption func(*Expander)

// WithMissingAction sets how missing variables are handled.
func WithMissingAction(action MissingAction) ExpandOption {
	return func(e *Expander) {
		e.missingAction = action
	}
}

// WithDollarStyle enables or disables $var expansion. ${var} is always on.
func WithDollarStyle(enabled bool) ExpandOption {
	return func(e *Expander) {
		e.dollarStyle = enabled
	}
}

// Expander expands variable placeholders in strings.
type Expander struct {
	missingAction MissingAction
	dollarStyle   bool
}

// NewExpander creates an Expander. By default missing variables are kept
// and both placeholder styles are expanded.
func NewExpander(opts ...ExpandOption) *Expander {
	e := &Expander{missingAction: MissingKeep, dollarStyle: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand replaces placeholders in s with values from vars.
// Errors are only returned with MissingError.
func (e *Expander) Expand(s string, vars map[string]any) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	replace := func(name, match string) string {
		if val, ok := vars[name]; ok {
			return fmt.Sprintf("%v", val)
		}
		switch e.missingAction {
		case MissingEmpty:
			return ""
		case MissingError:
			missing = append(missing, name)
		}
		return match
	}

	result := bracePattern.ReplaceAllStringFunc(s, func(match string) string {
		return replace(match[2:len(match)-1], match)
	})
	if e.dollarStyle {
		result = dollarPattern.ReplaceAllStringFunc(result, func(match string) string {
			return replace(match[1:], match)
		})
	}

	if len(missing) > 0 {
		return result, &UndefinedVariableError{Names: missing}
	}
	return result, nil
}

// ExpandMap expands every string value of m, recursing into nested maps.
// Non-string values are copied as-is.
func (e *Expander) ExpandMap(m map[string]any, vars map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			s, err := e.Expand(val, vars)
			if err != nil {
				return nil, err
			}
			out[k] = s
		case map[string]any:
			nested, err := e.ExpandMap(val, vars)
			if err != nil {
				return nil, err
			}
			out[k] = nested
		default:
			out[k] = v
		}
	}
	return out, nil
}

// UndefinedVariableError is returned when MissingError is set and one or
// more variables are not found.
type UndefinedVariableError struct {
	Names []string
}

// Error implements the error interface.
func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined variable: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined variables: %s", strings.Join(e.Names, ", "))
}

var defaultExpander = NewExpander()

// Expand expands placeholders with the default expander, keeping missing ones.
func Expand(s string, vars map[string]any) string {
	result, _ := defaultExpander.Expand(s, vars)
	return result
}
