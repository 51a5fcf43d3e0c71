// Package spec defines the evaluation specification extracted from a
// procurement document: the declared input variables and the ordered list
// of formulas computed from them. The specification is produced by the
// extraction backend and treated as untrusted but well-typed data.
package spec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Input kinds a variable may declare. Unrecognized kinds are tolerated by
// consumers (rendered as nothing), never rejected here.
const (
	InputNumber = "number"
	InputYesNo  = "yesno"
	InputRadio  = "radio"
)

var (
	// ErrMissingVariables indicates the specification payload had no
	// "variables" object.
	ErrMissingVariables = errors.New("specification is missing the 'variables' object")

	// ErrMissingRules indicates the specification payload had no "rules" list.
	ErrMissingRules = errors.New("specification is missing the 'rules' list")
)

// Domain holds optional advisory numeric bounds for a number variable.
// Enforcement is a presentation concern, not done by the engine.
type Domain struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Option is one choice of a radio variable. The wire format permits either
// a bare string (the string is both label and value) or an object with a
// label and a numeric value. Mixed forms within one list are allowed.
type Option struct {
	Label string

	// Number is set for object-form options.
	Number *float64

	// Text is set for string-form options and doubles as the option value.
	Text string
}

// UnmarshalJSON accepts both the string form and the {label, value} form.
func (o *Option) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		o.Label = s
		o.Text = s
		o.Number = nil
		return nil
	}

	var obj struct {
		Label string   `json:"label"`
		Value *float64 `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("option must be a string or a {label, value} object: %w", err)
	}
	if obj.Value == nil {
		return errors.New("object-form option is missing its numeric 'value'")
	}
	o.Label = obj.Label
	o.Number = obj.Value
	o.Text = ""
	return nil
}

// Match reports whether a raw form entry selects this option. Matching is
// by value equality on the stringified raw entry: string-form options
// compare against their text, object-form options against their
// stringified numeric value. Object-form labels are deliberately never
// matched against.
func (o Option) Match(raw any) bool {
	s := stringify(raw)
	if o.Number != nil {
		return s == strconv.FormatFloat(*o.Number, 'f', -1, 64)
	}
	return s == o.Text
}

// Value returns the typed value this option resolves to: a float64 for
// object-form options, the string itself for string-form options.
func (o Option) Value() any {
	if o.Number != nil {
		return *o.Number
	}
	return o.Text
}

// stringify renders a raw form entry for option matching.
func stringify(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// VariableDef declares one user input.
type VariableDef struct {
	Label    string   `json:"label"`
	Input    string   `json:"input"`
	Domain   *Domain  `json:"domain,omitempty"`
	Options  []Option `json:"options,omitempty"`
	Category string   `json:"category,omitempty"`
}

// Rule is one computation step: a human-readable label and a single
// assignment formula of the shape "name = expression". Rules are evaluated
// strictly in list order.
type Rule struct {
	Label   string `json:"label"`
	Formula string `json:"formula"`
}

// Specification is the full extracted evaluation model. Immutable once
// loaded; a new upload replaces it wholesale.
type Specification struct {
	Variables map[string]VariableDef `json:"variables"`
	Rules     []Rule                 `json:"rules"`
	Summary   string                 `json:"summary,omitempty"`
}

// Decode parses a specification payload, failing fast when the required
// "variables" or "rules" members are absent or null. Optional members may
// be missing without error.
func Decode(data []byte) (*Specification, error) {
	var raw struct {
		Variables json.RawMessage `json:"variables"`
		Rules     json.RawMessage `json:"rules"`
		Summary   string          `json:"summary"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("specification is not a JSON object: %w", err)
	}
	if len(raw.Variables) == 0 || string(raw.Variables) == "null" {
		return nil, ErrMissingVariables
	}
	if len(raw.Rules) == 0 || string(raw.Rules) == "null" {
		return nil, ErrMissingRules
	}

	s := &Specification{Summary: raw.Summary}
	if err := json.Unmarshal(raw.Variables, &s.Variables); err != nil {
		return nil, fmt.Errorf("invalid 'variables' object: %w", err)
	}
	if err := json.Unmarshal(raw.Rules, &s.Rules); err != nil {
		return nil, fmt.Errorf("invalid 'rules' list: %w", err)
	}
	return s, nil
}

// Envelope is the wire shape of an extraction backend response. On a
// pipeline failure the backend instead sends {"error": "..."} with no
// success flag, which decodes here with Success=false.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Summary string          `json:"summary,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// FailureMessage returns the most specific human-readable failure text the
// envelope carries, or the empty string when it carries none.
func (e *Envelope) FailureMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}
