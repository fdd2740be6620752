// Package datum decodes and encodes the Plutus data attached to script outputs.
//
// A decoded node is one of a constructor with fields, an integer, a byte string or a list. Plutus maps are kept
// opaque: they serialize to JSON null and re-encode to their original bytes.
//
// JSON shape of a node:
//
//	constructor  {"constructor": "<alternative>", "fields": [...]}
//	integer      number
//	byte string  hex string
//	list         [...]
//	map          null
package datum

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"
)

// Kind is the type of a node.
type Kind uint8

// Node kinds.
const (
	Invalid Kind = iota
	Constr
	Int
	Bytes
	List
	Map
)

// CBOR tags of the Plutus data encoding.
const (
	tagPosBignum   = 2
	tagNegBignum   = 3
	tagConstrAny   = 102
	tagConstrSmall = 121  // alternatives 0 to 6
	tagConstrLarge = 1280 // alternatives 7 to 127
)

// chunkSize is the maximum length of a byte string chunk.
const chunkSize = 64

// Value is a decoded Plutus data node. The zero value and nil are invalid nodes.
type Value struct {
	kind   Kind
	alt    uint64
	items  []*Value // constructor fields or list items
	i      *big.Int
	b      []byte
	mapRaw []byte
}

// Errors returned while decoding or encoding.
var (
	ErrEmpty   = errors.New("empty datum")
	ErrTag     = errors.New("unsupported cbor tag")
	ErrType    = errors.New("unsupported cbor type")
	ErrInvalid = errors.New("cannot encode invalid datum node")
)

var decMode cbor.DecMode //nolint:gochecknoglobals // immutable after init

func init() { //nolint:gochecknoinits // decoding options
	var err error
	if decMode, err = (cbor.DecOptions{MaxNestedLevels: 1024}).DecMode(); err != nil {
		panic(err)
	}
}

// NewConstr returns a constructor node.
func NewConstr(alt uint64, fields ...*Value) *Value {
	if fields == nil {
		fields = []*Value{}
	}

	return &Value{kind: Constr, alt: alt, items: fields}
}

// NewInt returns an integer node.
func NewInt(i int64) *Value {
	return &Value{kind: Int, i: big.NewInt(i)}
}

// NewBigInt returns an integer node holding a copy of i.
func NewBigInt(i *big.Int) *Value {
	return &Value{kind: Int, i: new(big.Int).Set(i)}
}

// NewBytes returns a byte string node.
func NewBytes(b []byte) *Value {
	return &Value{kind: Bytes, b: append([]byte{}, b...)}
}

// NewText returns a byte string node holding the UTF-8 bytes of s.
func NewText(s string) *Value {
	return &Value{kind: Bytes, b: []byte(s)}
}

// NewList returns a list node.
func NewList(items ...*Value) *Value {
	if items == nil {
		items = []*Value{}
	}

	return &Value{kind: List, items: items}
}

// Kind returns the kind of the node, Invalid for nil.
func (v *Value) Kind() Kind {
	if v == nil {
		return Invalid
	}

	return v.kind
}

// Constructor returns the alternative of a constructor node in decimal, or "" for other nodes.
func (v *Value) Constructor() string {
	if v.Kind() != Constr {
		return ""
	}

	return strconv.FormatUint(v.alt, 10)
}

// Alt returns the alternative of a constructor node.
func (v *Value) Alt() (uint64, bool) {
	if v.Kind() != Constr {
		return 0, false
	}

	return v.alt, true
}

// Fields returns the fields of a constructor or the items of a list.
func (v *Value) Fields() []*Value {
	if k := v.Kind(); k != Constr && k != List {
		return nil
	}

	return v.items
}

// Field returns the i-th field of a constructor or list, nil when out of range.
func (v *Value) Field(i int) *Value {
	f := v.Fields()
	if i < 0 || i >= len(f) {
		return nil
	}

	return f[i]
}

// Int returns a copy of the integer of the node, zero for other kinds.
func (v *Value) Int() *big.Int {
	if v.Kind() != Int {
		return new(big.Int)
	}

	return new(big.Int).Set(v.i)
}

// Int64 returns the integer of the node, zero for other kinds or when it does not fit.
func (v *Value) Int64() int64 {
	if v.Kind() != Int || !v.i.IsInt64() {
		return 0
	}

	return v.i.Int64()
}

// Bytes returns a copy of the byte string of the node, nil for other kinds.
func (v *Value) Bytes() []byte {
	if v.Kind() != Bytes {
		return nil
	}

	return append([]byte{}, v.b...)
}

// Hex returns the byte string of the node in hex, "" for other kinds.
func (v *Value) Hex() string {
	if v.Kind() != Bytes {
		return ""
	}

	return hex.EncodeToString(v.b)
}

// Text returns the byte string of the node as UTF-8, invalid sequences replaced by U+FFFD.
func (v *Value) Text() string {
	if v.Kind() != Bytes {
		return ""
	}

	if utf8.Valid(v.b) {
		return string(v.b)
	}

	return strings.ToValidUTF8(string(v.b), "�")
}

// UnmarshalCBOR decodes one Plutus data item.
func (v *Value) UnmarshalCBOR(data []byte) error {
	if len(data) == 0 {
		return ErrEmpty
	}

	*v = Value{}

	switch data[0] >> 5 {
	case 0, 1: // integers
		v.kind, v.i = Int, new(big.Int)

		return decMode.Unmarshal(data, v.i)
	case 2: // byte strings, chunked ones are joined by the decoder
		v.kind, v.b = Bytes, []byte{}

		return decMode.Unmarshal(data, &v.b)
	case 4: // lists
		v.kind, v.items = List, []*Value{}

		return decMode.Unmarshal(data, &v.items)
	case 5: // maps
		if err := decMode.Wellformed(data); err != nil {
			return err
		}

		v.kind, v.mapRaw = Map, append([]byte{}, data...)

		return nil
	case 6: // tags
		return v.unmarshalTag(data)
	}

	return fmt.Errorf("%w: initial byte 0x%02x", ErrType, data[0])
}

func (v *Value) unmarshalTag(data []byte) error {
	var t cbor.RawTag
	if err := decMode.Unmarshal(data, &t); err != nil {
		return err
	}

	switch n := t.Number; {
	case n == tagPosBignum || n == tagNegBignum:
		v.kind, v.i = Int, new(big.Int)

		return decMode.Unmarshal(data, v.i)
	case n >= tagConstrSmall && n < tagConstrSmall+7:
		v.kind, v.alt, v.items = Constr, n-tagConstrSmall, []*Value{}
	case n >= tagConstrLarge && n < tagConstrLarge+121:
		v.kind, v.alt, v.items = Constr, n-tagConstrLarge+7, []*Value{}
	case n == tagConstrAny:
		var c struct {
			_      struct{} `cbor:",toarray"`
			Alt    uint64
			Fields []*Value
		}

		if err := decMode.Unmarshal(t.Content, &c); err != nil {
			return fmt.Errorf("invalid general constructor: %w", err)
		}

		v.kind, v.alt, v.items = Constr, c.Alt, c.Fields
		if v.items == nil {
			v.items = []*Value{}
		}

		return nil
	default:
		return fmt.Errorf("%w: %d", ErrTag, n)
	}

	if len(t.Content) == 0 || t.Content[0]>>5 != 4 {
		return fmt.Errorf("%w: constructor fields must be a list", ErrType)
	}

	return decMode.Unmarshal(t.Content, &v.items)
}

// MarshalCBOR encodes the node the way the ledger serializes Plutus data: non empty lists use indefinite length and
// byte strings longer than 64 bytes are chunked.
func (v *Value) MarshalCBOR() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (v *Value) encode(buf *bytes.Buffer) error {
	switch v.Kind() {
	case Constr:
		return v.encodeConstr(buf)
	case Int:
		b, err := cbor.Marshal(v.i)
		if err != nil {
			return err
		}

		buf.Write(b)
	case Bytes:
		return encodeBytes(buf, v.b)
	case List:
		return encodeList(buf, v.items)
	case Map:
		buf.Write(v.mapRaw)
	default:
		return ErrInvalid
	}

	return nil
}

func (v *Value) encodeConstr(buf *bytes.Buffer) error {
	var content bytes.Buffer

	n := uint64(tagConstrAny)

	switch {
	case v.alt < 7:
		n = tagConstrSmall + v.alt
	case v.alt < 128:
		n = tagConstrLarge + v.alt - 7
	default:
		alt, err := cbor.Marshal(v.alt)
		if err != nil {
			return err
		}

		content.WriteByte(0x82)
		content.Write(alt)
	}

	if err := encodeList(&content, v.items); err != nil {
		return err
	}

	b, err := cbor.RawTag{Number: n, Content: content.Bytes()}.MarshalCBOR()
	if err != nil {
		return err
	}

	buf.Write(b)

	return nil
}

func encodeList(buf *bytes.Buffer, items []*Value) error {
	if len(items) == 0 {
		buf.WriteByte(0x80)

		return nil
	}

	buf.WriteByte(0x9f)

	for _, it := range items {
		if err := it.encode(buf); err != nil {
			return err
		}
	}

	buf.WriteByte(0xff)

	return nil
}

func encodeBytes(buf *bytes.Buffer, b []byte) error {
	if len(b) <= chunkSize {
		return writeByteString(buf, b)
	}

	buf.WriteByte(0x5f)

	for len(b) > 0 {
		n := chunkSize
		if len(b) < n {
			n = len(b)
		}

		if err := writeByteString(buf, b[:n]); err != nil {
			return err
		}

		b = b[n:]
	}

	buf.WriteByte(0xff)

	return nil
}

func writeByteString(buf *bytes.Buffer, b []byte) error {
	e, err := cbor.Marshal(b)
	if err != nil {
		return err
	}

	buf.Write(e)

	return nil
}

// MarshalJSON writes the node in the shape described in the package documentation.
func (v *Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	v.writeJSON(&buf)

	return buf.Bytes(), nil
}

func (v *Value) writeJSON(buf *bytes.Buffer) {
	switch v.Kind() {
	case Constr:
		buf.WriteString(`{"constructor":"`)
		buf.WriteString(strconv.FormatUint(v.alt, 10))
		buf.WriteString(`","fields":`)
		writeJSONList(buf, v.items)
		buf.WriteByte('}')
	case Int:
		buf.WriteString(v.i.String())
	case Bytes:
		buf.WriteByte('"')
		buf.WriteString(hex.EncodeToString(v.b))
		buf.WriteByte('"')
	case List:
		writeJSONList(buf, v.items)
	default:
		buf.WriteString("null")
	}
}

func writeJSONList(buf *bytes.Buffer, items []*Value) {
	buf.WriteByte('[')

	for i, it := range items {
		if i > 0 {
			buf.WriteByte(',')
		}

		it.writeJSON(buf)
	}

	buf.WriteByte(']')
}

// String returns the JSON representation.
func (v *Value) String() string {
	b, _ := v.MarshalJSON()

	return string(b)
}

// Equal reports whether a and b are the same data. Maps compare by their encoding.
func Equal(a, b *Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}

	switch a.Kind() {
	case Constr, List:
		if a.alt != b.alt || len(a.items) != len(b.items) {
			return false
		}

		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}

		return true
	case Int:
		return a.i.Cmp(b.i) == 0
	case Bytes:
		return bytes.Equal(a.b, b.b)
	case Map:
		return bytes.Equal(a.mapRaw, b.mapRaw)
	}

	return true
}
