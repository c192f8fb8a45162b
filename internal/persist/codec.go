package persist

import (
	"fmt"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/config"
	"github.com/funvibe/optijit/internal/typesystem"
)

// Wire layout of a persisted map:
//
//	message Map   { uint32 format = 1; repeated Entry entries = 2; }
//	message Entry { uint32 point = 1; uint32 type = 2; }
const (
	fieldFormat  protowire.Number = 1
	fieldEntries protowire.Number = 2
	fieldPoint   protowire.Number = 1
	fieldType    protowire.Number = 2
)

// DecodeError reports a persisted entry that cannot be trusted.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "persist: corrupt entry: " + e.Reason }

func decodeErrorf(format string, args ...any) error {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

func isDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// Encode serializes m with entries in program point order, so equal maps
// encode to equal bytes.
func Encode(m typesystem.InvalidationMap) []byte {
	b := protowire.AppendTag(nil, fieldFormat, protowire.VarintType)
	b = protowire.AppendVarint(b, config.FormatVersion)
	var entry []byte
	for _, pp := range m.Points() {
		entry = entry[:0]
		entry = protowire.AppendTag(entry, fieldPoint, protowire.VarintType)
		entry = protowire.AppendVarint(entry, uint64(pp))
		entry = protowire.AppendTag(entry, fieldType, protowire.VarintType)
		entry = protowire.AppendVarint(entry, uint64(m[pp]))
		b = protowire.AppendTag(b, fieldEntries, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

// Decode parses an encoded map. Unknown fields are skipped; a missing or
// different format version is an error.
func Decode(data []byte) (typesystem.InvalidationMap, error) {
	m := typesystem.InvalidationMap{}
	format := uint64(0)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, decodeErrorf("tag: %v", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == fieldFormat && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, decodeErrorf("format: %v", protowire.ParseError(n))
			}
			format = v
			data = data[n:]
		case num == fieldEntries && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, decodeErrorf("entry: %v", protowire.ParseError(n))
			}
			pp, t, err := decodeEntry(v)
			if err != nil {
				return nil, err
			}
			m[pp] = typesystem.Widest(m[pp], t)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, decodeErrorf("field %d: %v", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	if format != config.FormatVersion {
		return nil, decodeErrorf("format version %d, want %d", format, config.FormatVersion)
	}
	return m, nil
}

func decodeEntry(data []byte) (int, typesystem.Type, error) {
	var pp, t uint64
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return 0, 0, decodeErrorf("entry tag: %v", protowire.ParseError(n))
		}
		data = data[n:]
		if typ != protowire.VarintType || (num != fieldPoint && num != fieldType) {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return 0, 0, decodeErrorf("entry field %d: %v", num, protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return 0, 0, decodeErrorf("entry value: %v", protowire.ParseError(n))
		}
		data = data[n:]
		if num == fieldPoint {
			pp = v
		} else {
			t = v
		}
	}
	if pp < ast.FirstProgramPoint || pp > ast.MaxProgramPoint {
		return 0, 0, decodeErrorf("program point %d out of range", pp)
	}
	if t == uint64(typesystem.Unknown) || t > uint64(typesystem.Object) {
		return 0, 0, decodeErrorf("type %d at program point %d", t, pp)
	}
	return int(pp), typesystem.Type(t), nil
}
