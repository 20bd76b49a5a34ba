package action

import (
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"
)

func TestValue_SQLArg(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want any
	}{
		{"null", Null(), nil},
		{"bool", Bool(true), true},
		{"integer", Number("42"), int64(42)},
		{"float", Number("1.5"), 1.5},
		{"string", String("hi"), "hi"},
		{"list", List(Int(1), String("a")), `[1,"a"]`},
		{"object", Object(map[string]Value{"k": Bool(false)}), `{"k":false}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.SQLArg()
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestValue_SQLArg_InvalidNumber(t *testing.T) {
	_, err := Number("1e").SQLArg()
	require.Error(t, err)
}

func TestValue_Equal(t *testing.T) {
	require.True(t, Number("20").Equal(Number("20.0")))
	require.False(t, Number("20").Equal(String("20")))
	require.True(t, List(Int(1)).Equal(List(Int(1))))
	require.False(t, List(Int(1)).Equal(List(Int(1), Int(2))))
	require.True(t, Object(map[string]Value{"a": Null()}).Equal(Object(map[string]Value{"a": Null()})))
	require.False(t, Object(map[string]Value{"a": Null()}).Equal(Object(map[string]Value{"b": Null()})))
}

func TestValue_MarshalJSON(t *testing.T) {
	v := Object(map[string]Value{"n": Number("12345678901234567890"), "s": String("x")})
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.JSONEq(t, `{"n":12345678901234567890,"s":"x"}`, string(b))
}

func TestKind_String(t *testing.T) {
	require.Equal(t, "object", KindObject.String())
	require.Equal(t, "null", KindNull.String())
}

func TestValue_SQLArg_ExactNumeric(t *testing.T) {
	tests := []struct {
		lit     string
		wantInt string
		wantExp int32
	}{
		{"12345678901234567890", "12345678901234567890", 0},
		{"-98765432109876543210", "-98765432109876543210", 0},
		{"0.1234567890123456789", "1234567890123456789", -19},
		{"3.14159265358979323846", "314159265358979323846", -20},
	}
	for _, tt := range tests {
		t.Run(tt.lit, func(t *testing.T) {
			got, err := Number(tt.lit).SQLArg()
			require.NoError(t, err)
			n, ok := got.(pgtype.Numeric)
			require.True(t, ok, "got %T", got)
			require.True(t, n.Valid)
			require.Equal(t, tt.wantInt, n.Int.String())
			require.Equal(t, tt.wantExp, n.Exp)
		})
	}

	// Short literals and exponent forms stay native.
	got, err := Number("2.5e3").SQLArg()
	require.NoError(t, err)
	require.Equal(t, 2500.0, got)
	got, err = Number("9223372036854775807").SQLArg()
	require.NoError(t, err)
	require.Equal(t, int64(9223372036854775807), got)
}
