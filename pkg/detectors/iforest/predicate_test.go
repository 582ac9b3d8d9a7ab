package iforest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/anomalyscore/pkg/fields"
	"github.com/hed1ad/anomalyscore/pkg/resource"
)

func predicateSchema() *fields.Fields {
	return fields.New(map[string]*fields.Field{
		"f": {Name: "f", Optype: fields.Numeric},
		"c": {Name: "c", Optype: fields.Categorical},
		"t": {
			Name:         "t",
			Optype:       fields.Text,
			TermAnalysis: &fields.TermAnalysis{TokenMode: fields.TokenModeAll},
			Summary:      &fields.Summary{TermForms: map[string][]string{"fox": {"foxes"}}},
		},
		"s": {
			Name:         "s",
			Optype:       fields.Text,
			TermAnalysis: &fields.TermAnalysis{TokenMode: fields.TokenModeFullTerms, CaseSensitive: true},
		},
		"i": {
			Name:         "i",
			Optype:       fields.Items,
			ItemAnalysis: &fields.ItemAnalysis{Separator: ";"},
		},
	}, nil, nil)
}

func evalPredicate(t *testing.T, src resource.Predicate, input map[string]any) bool {
	t.Helper()
	fs := predicateSchema()
	p, err := compactPredicate(src)
	require.NoError(t, err)

	var m *termMatcher
	if p.HasTerm {
		m, err = newTermMatcher(&p, fs)
		require.NoError(t, err)
	}
	return p.apply(input, fs, m)
}

func strPtr(s string) *string { return &s }

func TestParseOperator(t *testing.T) {
	tests := []struct {
		name        string
		op          string
		want        Operator
		wantMissing bool
		wantErr     bool
	}{
		{name: "less", op: "<", want: OpLess},
		{name: "less missing", op: "<*", want: OpLess, wantMissing: true},
		{name: "less equal", op: "<=", want: OpLessEqual},
		{name: "equal", op: "=", want: OpEqual},
		{name: "not equal", op: "!=", want: OpNotEqual},
		{name: "not equal alias", op: "/=", want: OpNotEqual},
		{name: "greater equal missing", op: ">=*", want: OpGreaterEqual, wantMissing: true},
		{name: "greater", op: ">", want: OpGreater},
		{name: "in", op: "in", want: OpIn},
		{name: "unknown", op: "like", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, missing, err := ParseOperator(tt.op)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPredicate)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, op)
			assert.Equal(t, tt.wantMissing, missing)
		})
	}
}

func TestMissingValuePredicate(t *testing.T) {
	p := resource.Predicate{Op: "<*", Field: "f", Value: 5.0}

	assert.True(t, evalPredicate(t, p, map[string]any{}), "absent field matches")
	assert.True(t, evalPredicate(t, p, map[string]any{"f": nil}), "nil value matches")
	assert.True(t, evalPredicate(t, p, map[string]any{"f": 4.0}))
	assert.False(t, evalPredicate(t, p, map[string]any{"f": 5.0}))

	strict := resource.Predicate{Op: "<", Field: "f", Value: 5.0}
	assert.False(t, evalPredicate(t, strict, map[string]any{}))
	assert.True(t, evalPredicate(t, strict, map[string]any{"f": 4.0}))
}

func TestComparisonPredicates(t *testing.T) {
	tests := []struct {
		name  string
		pred  resource.Predicate
		input map[string]any
		want  bool
	}{
		{name: "less equal", pred: resource.Predicate{Op: "<=", Field: "f", Value: 5.0}, input: map[string]any{"f": 5.0}, want: true},
		{name: "greater", pred: resource.Predicate{Op: ">", Field: "f", Value: 5.0}, input: map[string]any{"f": 5.0}, want: false},
		{name: "greater equal", pred: resource.Predicate{Op: ">=", Field: "f", Value: 5.0}, input: map[string]any{"f": 5.0}, want: true},
		{name: "equal category", pred: resource.Predicate{Op: "=", Field: "c", Value: "red"}, input: map[string]any{"c": "red"}, want: true},
		{name: "not equal category", pred: resource.Predicate{Op: "!=", Field: "c", Value: "red"}, input: map[string]any{"c": "blue"}, want: true},
		{name: "mismatched types", pred: resource.Predicate{Op: "=", Field: "c", Value: 1.0}, input: map[string]any{"c": "1"}, want: false},
		{name: "mismatched types not equal", pred: resource.Predicate{Op: "!=", Field: "c", Value: 1.0}, input: map[string]any{"c": "1"}, want: true},
		{name: "equal none on missing", pred: resource.Predicate{Op: "=", Field: "c", Value: nil}, input: map[string]any{}, want: true},
		{name: "not equal none on present", pred: resource.Predicate{Op: "!=", Field: "c", Value: nil}, input: map[string]any{"c": "red"}, want: true},
		{name: "missing token is missing", pred: resource.Predicate{Op: "=*", Field: "c", Value: "red"}, input: map[string]any{"c": "NA"}, want: true},
		{name: "in", pred: resource.Predicate{Op: "in", Field: "c", Value: []any{"red", "blue"}}, input: map[string]any{"c": "blue"}, want: true},
		{name: "not in", pred: resource.Predicate{Op: "in", Field: "c", Value: []any{"red", "blue"}}, input: map[string]any{"c": "green"}, want: false},
		{name: "in without none on missing", pred: resource.Predicate{Op: "in", Field: "c", Value: []any{"red"}}, input: map[string]any{}, want: false},
		{name: "in with none on missing", pred: resource.Predicate{Op: "in", Field: "c", Value: []any{"red", nil}}, input: map[string]any{}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evalPredicate(t, tt.pred, tt.input))
		})
	}
}

func TestCompactPredicateMissingFlag(t *testing.T) {
	p, err := compactPredicate(resource.Predicate{Op: "in", Field: "c", Value: []any{"a", nil}})
	require.NoError(t, err)
	assert.True(t, p.Missing)

	p, err = compactPredicate(resource.Predicate{Op: ">*", Field: "f", Value: 1.0})
	require.NoError(t, err)
	assert.True(t, p.Missing)
	assert.Equal(t, OpGreater, p.Op)

	_, err = compactPredicate(resource.Predicate{Op: "in", Field: "c", Value: "a"})
	assert.ErrorIs(t, err, ErrInvalidPredicate)
}

func TestTermPredicates(t *testing.T) {
	contains := func(field, term string) resource.Predicate {
		return resource.Predicate{Op: ">", Field: field, Value: 0.0, Term: strPtr(term)}
	}

	tests := []struct {
		name  string
		pred  resource.Predicate
		input map[string]any
		want  bool
	}{
		{name: "token", pred: contains("t", "fox"), input: map[string]any{"t": "The quick brown fox"}, want: true},
		{name: "case insensitive", pred: contains("t", "fox"), input: map[string]any{"t": "FOX hunting"}, want: true},
		{name: "term form", pred: contains("t", "fox"), input: map[string]any{"t": "two foxes"}, want: true},
		{name: "partial word", pred: contains("t", "fox"), input: map[string]any{"t": "firefoxy"}, want: false},
		{name: "missing text does not contain", pred: contains("t", "fox"), input: map[string]any{}, want: false},
		{
			name:  "missing text follows does not contain branch",
			pred:  resource.Predicate{Op: "<=", Field: "t", Value: 0.0, Term: strPtr("fox")},
			input: map[string]any{},
			want:  true,
		},
		{
			name:  "count",
			pred:  resource.Predicate{Op: ">=", Field: "t", Value: 2.0, Term: strPtr("fox")},
			input: map[string]any{"t": "fox, fox and foxes"},
			want:  true,
		},
		{name: "accented token", pred: contains("t", "café"), input: map[string]any{"t": "un café"}, want: true},
		{name: "accented token inside word", pred: contains("t", "café"), input: map[string]any{"t": "un caféx"}, want: false},
		{name: "accented neighbour", pred: contains("t", "crème"), input: map[string]any{"t": "crème brûlée"}, want: true},
		{name: "accented case insensitive", pred: contains("t", "niño"), input: map[string]any{"t": "El Niño llegó"}, want: true},
		{name: "accented token prefix only", pred: contains("t", "año"), input: map[string]any{"t": "los años"}, want: false},
		{name: "underscore delimits token", pred: contains("t", "fox"), input: map[string]any{"t": "fox_hunt"}, want: true},
		{name: "multi word term is full term", pred: contains("t", "New York"), input: map[string]any{"t": "new york"}, want: true},
		{name: "multi word term inside text", pred: contains("t", "New York"), input: map[string]any{"t": "I love New York"}, want: false},
		{name: "full term", pred: contains("s", "New York"), input: map[string]any{"s": "New York"}, want: true},
		{name: "full term partial", pred: contains("s", "New York"), input: map[string]any{"s": "New York City"}, want: false},
		{name: "full term case sensitive", pred: contains("s", "New York"), input: map[string]any{"s": "new york"}, want: false},
		{name: "item", pred: contains("i", "milk"), input: map[string]any{"i": "bread;milk;eggs"}, want: true},
		{name: "item prefix only", pred: contains("i", "milk"), input: map[string]any{"i": "milkshake;eggs"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evalPredicate(t, tt.pred, tt.input))
		})
	}
}

func TestTermMatcherCount(t *testing.T) {
	fs := predicateSchema()
	p := predicate{Field: "t", Term: "fox", HasTerm: true}
	m, err := newTermMatcher(&p, fs)
	require.NoError(t, err)
	assert.Equal(t, 3, m.count("fox, Fox and foxes"))
	assert.Equal(t, 2, m.count("fox_hunt and fox"))

	p = predicate{Field: "t", Term: "café", HasTerm: true}
	m, err = newTermMatcher(&p, fs)
	require.NoError(t, err)
	assert.Equal(t, 2, m.count("café, CAFÉ et cafés"))

	p = predicate{Field: "i", Term: "a", HasTerm: true}
	m, err = newTermMatcher(&p, fs)
	require.NoError(t, err)
	assert.Equal(t, 1, m.count("a;b;c"))

	p = predicate{Field: "missing", Term: "a", HasTerm: true}
	_, err = newTermMatcher(&p, fs)
	assert.ErrorIs(t, err, ErrInvalidPredicate)
}

func TestOperatorString(t *testing.T) {
	assert.Equal(t, "<=", OpLessEqual.String())
	assert.Equal(t, "in", OpIn.String())
	assert.Equal(t, "Operator(42)", Operator(42).String())
}
