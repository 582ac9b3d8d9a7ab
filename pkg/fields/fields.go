// Package fields filters and casts input records against a model's field schema.
package fields

import (
	"fmt"
	"strconv"
	"strings"
)

// Optypes understood by the casting rules.
const (
	Numeric     = "numeric"
	Categorical = "categorical"
	Text        = "text"
	Items       = "items"
	Datetime    = "datetime"
)

// Text token modes.
const (
	TokenModeAll       = "all"
	TokenModeTokens    = "tokens_only"
	TokenModeFullTerms = "full_terms_only"
)

// DefaultMissingTokens are the strings treated as a missing value when the
// model does not provide its own list.
var DefaultMissingTokens = []string{
	"", "NaN", "NULL", "N/A", "null", "-", "#REF!", "#VALUE!", "?", "#NULL!",
	"#NUM!", "#DIV/0", "n/a", "#NAME?", "NIL", "nil", "na", "#N/A", "NA",
}

// TermAnalysis holds the tokenization options of a text field.
type TermAnalysis struct {
	CaseSensitive bool   `json:"case_sensitive"`
	TokenMode     string `json:"token_mode"`
}

// ItemAnalysis holds the splitting options of an items field.
type ItemAnalysis struct {
	Separator       string `json:"separator"`
	SeparatorRegexp string `json:"separator_regexp"`
}

// Summary keeps the part of a field summary used while scoring.
type Summary struct {
	TermForms map[string][]string `json:"term_forms,omitempty"`
}

// Field describes one entry of the model's field schema.
type Field struct {
	ID           string        `json:"-"`
	Name         string        `json:"name"`
	Optype       string        `json:"optype"`
	ColumnNumber int           `json:"column_number"`
	Prefix       string        `json:"prefix,omitempty"`
	Suffix       string        `json:"suffix,omitempty"`
	TermAnalysis *TermAnalysis `json:"term_analysis,omitempty"`
	ItemAnalysis *ItemAnalysis `json:"item_analysis,omitempty"`
	Summary      *Summary      `json:"summary,omitempty"`
}

// TermForms returns the alternative forms registered for term.
func (f *Field) TermForms(term string) []string {
	if f.Summary == nil {
		return nil
	}
	return f.Summary.TermForms[term]
}

// CastError reports a value that cannot be converted to its field's optype.
type CastError struct {
	Field  string
	Optype string
	Value  any
	Err    error
}

func (e *CastError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("casting %v for %s field %q: %v", e.Value, e.Optype, e.Field, e.Err)
	}
	return fmt.Sprintf("casting %v for %s field %q", e.Value, e.Optype, e.Field)
}

func (e *CastError) Unwrap() error {
	return e.Err
}

// Fields is an immutable field schema restricted to the model input fields.
type Fields struct {
	schema        map[string]*Field
	inputFields   []string
	inputs        map[string]bool
	byName        map[string]string
	missingTokens map[string]bool
}

// New builds a Fields schema. When inputFields is empty every field in the
// schema is accepted as input. A nil missingTokens uses DefaultMissingTokens.
// Nil schema entries are skipped.
func New(schema map[string]*Field, inputFields []string, missingTokens []string) *Fields {
	if missingTokens == nil {
		missingTokens = DefaultMissingTokens
	}
	f := &Fields{
		schema:        make(map[string]*Field, len(schema)),
		inputs:        make(map[string]bool, len(inputFields)),
		byName:        make(map[string]string, len(schema)),
		missingTokens: make(map[string]bool, len(missingTokens)),
	}
	for id, field := range schema {
		if field == nil {
			continue
		}
		field := *field
		field.ID = id
		f.schema[id] = &field
	}
	if len(inputFields) == 0 {
		for id := range f.schema {
			inputFields = append(inputFields, id)
		}
	}
	for _, id := range inputFields {
		if _, ok := f.schema[id]; !ok {
			continue
		}
		f.inputFields = append(f.inputFields, id)
		f.inputs[id] = true
		f.byName[f.schema[id].Name] = id
	}
	for _, token := range missingTokens {
		f.missingTokens[token] = true
	}
	return f
}

// Schema returns a copy of the field schema keyed by field id.
func (f *Fields) Schema() map[string]*Field {
	out := make(map[string]*Field, len(f.schema))
	for id, field := range f.schema {
		c := *field
		out[id] = &c
	}
	return out
}

// InputFields returns the ids of the accepted input fields.
func (f *Fields) InputFields() []string {
	return append([]string(nil), f.inputFields...)
}

// MissingTokens returns the strings treated as missing values.
func (f *Fields) MissingTokens() []string {
	out := make([]string, 0, len(f.missingTokens))
	for token := range f.missingTokens {
		out = append(out, token)
	}
	return out
}

// Lookup returns the field with the given id.
func (f *Fields) Lookup(id string) (*Field, bool) {
	field, ok := f.schema[id]
	return field, ok
}

// Resolve maps a field id or field name to an input field id.
func (f *Fields) Resolve(key string) (string, bool) {
	if f.inputs[key] {
		return key, true
	}
	id, ok := f.byName[key]
	return id, ok
}

// Filter keeps the known input fields of input, keyed by field id, with their
// values cast to the declared optype. Unknown fields and missing values are
// dropped.
func (f *Fields) Filter(input map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(input))
	for key, value := range input {
		id, ok := f.Resolve(key)
		if !ok || value == nil || f.IsMissing(value) {
			continue
		}
		cast, err := f.cast(f.schema[id], value)
		if err != nil {
			return nil, err
		}
		out[id] = cast
	}
	return out, nil
}

// IsMissing reports whether value is one of the missing tokens.
func (f *Fields) IsMissing(value any) bool {
	s, ok := value.(string)
	return ok && f.missingTokens[s]
}

func (f *Fields) cast(field *Field, value any) (any, error) {
	switch field.Optype {
	case Numeric:
		return castNumeric(field, value)
	case Categorical, Text, Items:
		return castString(field, value)
	default:
		return value, nil
	}
}

func castNumeric(field *Field, value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		s := strings.TrimSpace(v)
		s = strings.TrimPrefix(s, field.Prefix)
		s = strings.TrimSuffix(s, field.Suffix)
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, &CastError{Field: field.ID, Optype: field.Optype, Value: value, Err: err}
		}
		return n, nil
	default:
		return nil, &CastError{Field: field.ID, Optype: field.Optype, Value: value}
	}
}

func castString(field *Field, value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return nil, &CastError{Field: field.ID, Optype: field.Optype, Value: value}
	}
}
