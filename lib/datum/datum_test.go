package datum

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	long := strings.Repeat("aa", 70)

	for _, tc := range []struct {
		name string
		in   string
		json string
		out  string // canonical encoding
	}{
		{"empty constructor", "d87980", `{"constructor":"0","fields":[]}`, "d87980"},
		{"indefinite fields", "d8799f0102ff", `{"constructor":"0","fields":[1,2]}`, "d8799f0102ff"},
		{"definite fields", "d879820102", `{"constructor":"0","fields":[1,2]}`, "d8799f0102ff"},
		{"bytes field", "d87a9f4401020304ff", `{"constructor":"1","fields":["01020304"]}`, "d87a9f4401020304ff"},
		{"alternative 7", "d9050080", `{"constructor":"7","fields":[]}`, "d9050080"},
		{"alternative 127", "d9057880", `{"constructor":"127","fields":[]}`, "d9057880"},
		{"general constructor", "d8668218c880", `{"constructor":"200","fields":[]}`, "d8668218c880"},
		{"small general constructor", "d866820080", `{"constructor":"0","fields":[]}`, "d87980"},
		{"negative", "3863", `-100`, "3863"},
		{"bignum", "c249010000000000000000", `18446744073709551616`, "c249010000000000000000"},
		{"negative bignum", "c349010000000000000000", `-18446744073709551617`, "c349010000000000000000"},
		{"small bignum", "c24101", `1`, "01"},
		{"list", "820102", `[1,2]`, "9f0102ff"},
		{"empty list", "80", `[]`, "80"},
		{"nested", "d8799f9fd87a80ff40ff", `{"constructor":"0","fields":[[{"constructor":"1","fields":[]}],""]}`,
			"d8799f9fd87a80ff40ff"},
		{"map field", "d8799fa10102ff", `{"constructor":"0","fields":[null]}`, "d8799fa10102ff"},
		{"long bytes", "5846" + long, `"` + long + `"`, "5f5840" + strings.Repeat("aa", 64) + "46" + strings.Repeat("aa", 6) + "ff"},
		{"chunked bytes", "5f4201024103ff", `"010203"`, "43010203"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			v, err := Decode(tc.in)
			require.NoError(t, err)

			j, err := json.Marshal(v)
			require.NoError(t, err)
			assert.Equal(t, tc.json, string(j))

			enc, err := Encode(v)
			require.NoError(t, err)
			assert.Equal(t, tc.out, enc)

			// decoding is idempotent through the canonical encoding
			again, err := Decode(enc)
			require.NoError(t, err)
			assert.True(t, Equal(v, again), "%s != %s", v, again)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"zz",
		"d8799f01",   // truncated
		"63616263",   // text string
		"d87b01",     // constructor without list
		"d903e801",   // unknown tag
		"0102",       // trailing bytes
		"f5",         // simple value
		"d8668201",   // general constructor without fields
	} {
		_, err := Decode(in)
		assert.Error(t, err, in)
		assert.Nil(t, Parse(in), in)
	}

	_, err := Decode("")
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Decode("d903e801")
	assert.ErrorIs(t, err, ErrTag)
}

func TestAccessors(t *testing.T) {
	wallet := NewBytes([]byte{0x00, 0x11, 0xaa, 0xbb})

	member := NewConstr(1, wallet, NewInt(5000000), NewInt(12), NewInt(1700000000000))

	h, err := Encode(member)
	require.NoError(t, err)

	v := Parse(h)
	require.NotNil(t, v)
	assert.Equal(t, Constr, v.Kind())
	assert.Equal(t, "1", v.Constructor())
	assert.Equal(t, "0011aabb", v.Field(0).Hex())
	assert.Equal(t, int64(5000000), v.Field(1).Int64())
	assert.Equal(t, int64(12), v.Field(2).Int64())
	assert.Equal(t, int64(1700000000000), v.Field(3).Int64())
	assert.Len(t, v.Fields(), 4)

	// missing or mistyped fields give zero values
	assert.Nil(t, v.Field(4))
	assert.Nil(t, v.Field(-1))
	assert.Equal(t, int64(0), v.Field(4).Int64())
	assert.Equal(t, "", v.Field(1).Hex())
	assert.Equal(t, "", v.Field(0).Constructor())
	assert.Equal(t, 0, v.Field(9).Int().Sign())
	assert.Nil(t, v.Field(2).Bytes())

	var nilValue *Value
	assert.Equal(t, Invalid, nilValue.Kind())
	assert.Equal(t, "null", nilValue.String())

	_, ok := v.Alt()
	assert.True(t, ok)

	huge, _ := new(big.Int).SetString("18446744073709551616", 10)
	assert.Equal(t, int64(0), NewBigInt(huge).Int64())
	assert.Equal(t, 0, NewBigInt(huge).Int().Cmp(huge))

	assert.Equal(t, "Solar Farm", NewText("Solar Farm").Text())
	assert.Equal(t, "a�", NewBytes([]byte{'a', 0xff}).Text())

	_, err = Encode(NewList(NewInt(1), nil))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestMatch(t *testing.T) {
	v := NewConstr(0, NewText("alice"), NewInt(100), NewConstr(1))

	for _, tc := range []struct {
		p     Pattern
		match bool
	}{
		{Pattern{}, true},
		{Pattern{Constructor: "0"}, true},
		{Pattern{Constructor: "1"}, false},
		{Pattern{Fields: []*Value{NewText("alice")}}, true},
		{Pattern{Fields: []*Value{NewText("bob")}}, false},
		{Pattern{Constructor: "0", Fields: []*Value{nil, NewInt(100)}}, true},
		{Pattern{Fields: []*Value{nil, nil, NewConstr(1)}}, true},
		{Pattern{Fields: []*Value{nil, nil, NewConstr(2)}}, false},
		{Pattern{Fields: []*Value{nil, nil, nil, NewInt(1)}}, false},
	} {
		assert.Equal(t, tc.match, Match(v, tc.p), "%+v", tc.p)
	}

	assert.False(t, Match(nil, Pattern{Constructor: "0"}))
}
