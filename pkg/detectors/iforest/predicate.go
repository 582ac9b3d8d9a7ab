package iforest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hed1ad/anomalyscore/pkg/fields"
)

// Operator is a predicate comparison operator.
type Operator uint8

// Operators of the platform predicate language.
const (
	OpLess Operator = iota
	OpLessEqual
	OpEqual
	OpNotEqual
	OpGreaterEqual
	OpGreater
	OpIn
)

var operatorNames = map[string]Operator{
	"<":  OpLess,
	"<=": OpLessEqual,
	"=":  OpEqual,
	"!=": OpNotEqual,
	"/=": OpNotEqual,
	">=": OpGreaterEqual,
	">":  OpGreater,
	"in": OpIn,
}

// ParseOperator decodes an operator name. A trailing "*" means the predicate
// also matches missing values.
func ParseOperator(name string) (op Operator, missing bool, err error) {
	if strings.HasSuffix(name, "*") {
		missing = true
		name = strings.TrimSuffix(name, "*")
	}
	op, ok := operatorNames[name]
	if !ok {
		return 0, false, fmt.Errorf("%w: unknown operator %q", ErrInvalidPredicate, name)
	}
	return op, missing, nil
}

func (op Operator) String() string {
	switch op {
	case OpLess:
		return "<"
	case OpLessEqual:
		return "<="
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpGreaterEqual:
		return ">="
	case OpGreater:
		return ">"
	case OpIn:
		return "in"
	default:
		return "Operator(" + strconv.Itoa(int(op)) + ")"
	}
}

type operandKind uint8

const (
	kindNone operandKind = iota
	kindNumber
	kindString
	kindBool
	kindList
)

// operand is a typed predicate value or top anomaly cell.
type operand struct {
	Kind operandKind
	Num  float64
	Str  string
	Bool bool
	List []operand
}

func toOperand(v any) (operand, error) {
	switch v := v.(type) {
	case nil:
		return operand{Kind: kindNone}, nil
	case float64:
		return operand{Kind: kindNumber, Num: v}, nil
	case int:
		return operand{Kind: kindNumber, Num: float64(v)}, nil
	case string:
		return operand{Kind: kindString, Str: v}, nil
	case bool:
		return operand{Kind: kindBool, Bool: v}, nil
	case []any:
		list := make([]operand, len(v))
		for i, item := range v {
			o, err := toOperand(item)
			if err != nil {
				return operand{}, err
			}
			list[i] = o
		}
		return operand{Kind: kindList, List: list}, nil
	default:
		return operand{}, fmt.Errorf("%w: unsupported value %v (%T)", ErrInvalidPredicate, v, v)
	}
}

func (o operand) value() any {
	switch o.Kind {
	case kindNumber:
		return o.Num
	case kindString:
		return o.Str
	case kindBool:
		return o.Bool
	case kindList:
		out := make([]any, len(o.List))
		for i, item := range o.List {
			out[i] = item.value()
		}
		return out
	default:
		return nil
	}
}

func (o operand) hasNone() bool {
	for _, item := range o.List {
		if item.Kind == kindNone {
			return true
		}
	}
	return false
}

// predicate is the compact form of a guard condition.
type predicate struct {
	Op      Operator
	Field   string
	Value   operand
	Term    string
	HasTerm bool
	Missing bool
}

// termMatcher counts the occurrences of a predicate term in text or items
// values. It is rebuilt from the field schema and never serialized.
type termMatcher struct {
	pattern  *regexp.Regexp
	forms    []*regexp.Regexp
	fullTerm string
	fold     bool
	full     bool
}

func newTermMatcher(p *predicate, fs *fields.Fields) (*termMatcher, error) {
	field, ok := fs.Lookup(p.Field)
	if !ok {
		return nil, fmt.Errorf("%w: term predicate on unknown field %q", ErrInvalidPredicate, p.Field)
	}
	if field.Optype == fields.Items {
		sep := `\ `
		if field.ItemAnalysis != nil {
			switch {
			case field.ItemAnalysis.SeparatorRegexp != "":
				sep = field.ItemAnalysis.SeparatorRegexp
			case field.ItemAnalysis.Separator != "":
				sep = regexp.QuoteMeta(field.ItemAnalysis.Separator)
			}
		}
		re, err := regexp.Compile(fmt.Sprintf(`(^|%s)%s($|%s)`, sep, regexp.QuoteMeta(p.Term), sep))
		if err != nil {
			return nil, fmt.Errorf("%w: item pattern for %q: %v", ErrInvalidPredicate, p.Field, err)
		}
		return &termMatcher{pattern: re}, nil
	}

	mode := fields.TokenModeTokens
	caseSensitive := false
	if field.TermAnalysis != nil {
		if field.TermAnalysis.TokenMode != "" {
			mode = field.TermAnalysis.TokenMode
		}
		caseSensitive = field.TermAnalysis.CaseSensitive
	}
	forms := append([]string{p.Term}, field.TermForms(p.Term)...)
	if mode == fields.TokenModeFullTerms ||
		(mode == fields.TokenModeAll && len(forms) == 1 && isFullTerm(p.Term)) {
		return &termMatcher{fullTerm: p.Term, fold: !caseSensitive, full: true}, nil
	}

	m := &termMatcher{}
	for _, form := range forms {
		if form == "" {
			continue
		}
		expr := regexp.QuoteMeta(form)
		if !caseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: term pattern for %q: %v", ErrInvalidPredicate, p.Field, err)
		}
		m.forms = append(m.forms, re)
	}
	return m, nil
}

func (m *termMatcher) count(text string) int {
	if m.full {
		if m.fold {
			if strings.EqualFold(text, m.fullTerm) {
				return 1
			}
			return 0
		}
		if text == m.fullTerm {
			return 1
		}
		return 0
	}
	if m.pattern != nil {
		return len(m.pattern.FindAllStringIndex(text, -1))
	}

	n := 0
	for pos := 0; pos < len(text); {
		end := m.next(text, pos)
		if end < 0 {
			break
		}
		n++
		pos = end
	}
	return n
}

// next returns the end of the leftmost delimited term form occurrence at or
// after pos, or -1. Forms listed first win ties. A trailing "_" that
// delimits the occurrence is consumed.
func (m *termMatcher) next(text string, pos int) int {
	bestStart, bestEnd := -1, -1
	for _, re := range m.forms {
		for from := pos; from < len(text); {
			loc := re.FindStringIndex(text[from:])
			if loc == nil {
				break
			}
			start, end := from+loc[0], from+loc[1]
			if end > start && delimitedBefore(text, start, pos) && delimitedAfter(text, end) {
				if bestStart < 0 || start < bestStart {
					bestStart, bestEnd = start, end
				}
				break
			}
			_, size := utf8.DecodeRuneInString(text[start:])
			if size == 0 {
				break
			}
			from = start + size
		}
	}
	if bestEnd >= 0 && !wordBoundary(text, bestEnd) {
		bestEnd++
	}
	return bestEnd
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// wordBoundary reports whether i sits between a word and a non-word rune,
// the ends of text counting as non-word.
func wordBoundary(text string, i int) bool {
	before, after := false, false
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:i])
		before = isWordRune(r)
	}
	if i < len(text) {
		r, _ := utf8.DecodeRuneInString(text[i:])
		after = isWordRune(r)
	}
	return before != after
}

// delimitedBefore does not accept a "_" consumed by an earlier occurrence,
// one that lies before pos.
func delimitedBefore(text string, i, pos int) bool {
	if wordBoundary(text, i) {
		return true
	}
	return i > pos && text[i-1] == '_'
}

func delimitedAfter(text string, i int) bool {
	if wordBoundary(text, i) {
		return true
	}
	return i < len(text) && text[i] == '_'
}

// isFullTerm reports whether term holds a word boundary between two of its
// runes, such as the space of "New York".
func isFullTerm(term string) bool {
	prev, first := false, true
	for _, r := range term {
		w := isWordRune(r)
		if !first && w != prev {
			return true
		}
		prev, first = w, false
	}
	return false
}

// apply evaluates the predicate against an already cast input record.
func (p *predicate) apply(input map[string]any, fs *fields.Fields, matcher *termMatcher) bool {
	value, present := input[p.Field]
	if present && (value == nil || fs.IsMissing(value)) {
		present = false
	}
	if !present {
		if p.Missing {
			return true
		}
		if !p.HasTerm {
			return p.Op == OpEqual && p.Value.Kind == kindNone
		}
		// Missing text or items follow the does not contain branch.
		value = ""
	} else if p.Op == OpNotEqual && p.Value.Kind == kindNone {
		return true
	}

	if p.HasTerm {
		text, ok := value.(string)
		if !ok {
			text = fmt.Sprint(value)
		}
		count := 0
		if matcher != nil {
			count = matcher.count(text)
		}
		return compare(p.Op, float64(count), p.Value)
	}
	if p.Op == OpIn {
		for _, item := range p.Value.List {
			if compare(OpEqual, value, item) {
				return true
			}
		}
		return false
	}
	return compare(p.Op, value, p.Value)
}

// compare applies op to an input value and a predicate operand.
func compare(op Operator, value any, o operand) bool {
	switch v := value.(type) {
	case float64:
		if o.Kind == kindNumber {
			return compareOrdered(op, v, o.Num)
		}
	case string:
		if o.Kind == kindString {
			return compareOrdered(op, v, o.Str)
		}
	case bool:
		if o.Kind == kindBool {
			switch op {
			case OpEqual:
				return v == o.Bool
			case OpNotEqual:
				return v != o.Bool
			}
			return false
		}
	}
	return op == OpNotEqual
}

func compareOrdered[T float64 | string](op Operator, a, b T) bool {
	switch op {
	case OpLess:
		return a < b
	case OpLessEqual:
		return a <= b
	case OpEqual:
		return a == b
	case OpNotEqual:
		return a != b
	case OpGreaterEqual:
		return a >= b
	case OpGreater:
		return a > b
	default:
		return false
	}
}
