package fields

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() map[string]*Field {
	return map[string]*Field{
		"000000": {Name: "price", Optype: Numeric, Prefix: "$", Suffix: " USD"},
		"000001": {Name: "color", Optype: Categorical},
		"000002": {Name: "review", Optype: Text},
		"000003": {Name: "row id", Optype: Numeric},
	}
}

func TestFilter(t *testing.T) {
	f := New(testSchema(), []string{"000000", "000001", "000002"}, nil)

	tests := []struct {
		name  string
		input map[string]any
		want  map[string]any
	}{
		{
			name:  "field ids",
			input: map[string]any{"000000": 3.5, "000001": "red"},
			want:  map[string]any{"000000": 3.5, "000001": "red"},
		},
		{
			name:  "field names",
			input: map[string]any{"price": "$12.5 USD", "review": "good"},
			want:  map[string]any{"000000": 12.5, "000002": "good"},
		},
		{
			name:  "unknown and non input fields are dropped",
			input: map[string]any{"weight": 1.0, "000003": 7.0, "row id": 7.0},
			want:  map[string]any{},
		},
		{
			name:  "missing tokens are dropped",
			input: map[string]any{"000000": "NA", "000001": "", "000002": nil},
			want:  map[string]any{},
		},
		{
			name:  "numbers become categories",
			input: map[string]any{"color": 3.0, "review": true},
			want:  map[string]any{"000001": "3", "000002": "true"},
		},
		{
			name:  "integers become numbers",
			input: map[string]any{"price": 4},
			want:  map[string]any{"000000": 4.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Filter(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterCastError(t *testing.T) {
	f := New(testSchema(), nil, nil)

	_, err := f.Filter(map[string]any{"price": "cheap"})
	require.Error(t, err)

	var castErr *CastError
	require.True(t, errors.As(err, &castErr))
	assert.Equal(t, "000000", castErr.Field)
	assert.Equal(t, Numeric, castErr.Optype)
	assert.ErrorIs(t, err, strconv.ErrSyntax)
}

func TestNewAcceptsAllFieldsByDefault(t *testing.T) {
	f := New(testSchema(), nil, []string{"?"})

	assert.Len(t, f.InputFields(), 4)
	id, ok := f.Resolve("row id")
	assert.True(t, ok)
	assert.Equal(t, "000003", id)
	assert.True(t, f.IsMissing("?"))
	assert.False(t, f.IsMissing("NA"))
}

func TestSchemaIsCopied(t *testing.T) {
	schema := testSchema()
	f := New(schema, nil, nil)
	schema["000000"].Name = "changed"

	field, ok := f.Lookup("000000")
	require.True(t, ok)
	assert.Equal(t, "price", field.Name)
	assert.Equal(t, "000000", field.ID)

	f.Schema()["000000"].Name = "changed again"
	field, _ = f.Lookup("000000")
	assert.Equal(t, "price", field.Name)
}

func TestNewSkipsNilFields(t *testing.T) {
	schema := testSchema()
	schema["000004"] = nil
	f := New(schema, nil, nil)

	assert.Len(t, f.InputFields(), 4)
	_, ok := f.Lookup("000004")
	assert.False(t, ok)
}
