package types

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field helpers shared by the hand-written codecs in this package. They
// follow proto3 presence rules: scalar zero values are never emitted.

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSfixed64Field(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, uint64(v))
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// appendMessageField embeds an already encoded sub-message. Empty
// sub-messages are dropped unless force is set.
func appendMessageField(b []byte, num protowire.Number, msg []byte, force bool) []byte {
	if len(msg) == 0 && !force {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// appendTimestampField encodes t as a google.protobuf.Timestamp. The zero
// time.Time is absent; any other instant, the Unix epoch included, is
// always present.
func appendTimestampField(b []byte, num protowire.Number, t time.Time) []byte {
	if t.IsZero() {
		return b
	}
	var ts []byte
	ts = appendVarintField(ts, 1, uint64(t.Unix()))
	ts = appendVarintField(ts, 2, uint64(t.Nanosecond()))
	return appendMessageField(b, num, ts, true)
}

var errWireType = errors.New("wrong wire type")

// fieldDecoder consumes the value of a single field and reports how many
// bytes it used. Returning 0 marks the field as unknown, it is skipped.
type fieldDecoder func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func unmarshalFields(b []byte, decode fieldDecoder) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := decode(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, errWireType
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeSfixed64(typ protowire.Type, b []byte) (int64, int, error) {
	if typ != protowire.Fixed64Type {
		return 0, 0, errWireType
	}
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return int64(v), n, nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, errWireType
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	// copy so decoded messages never alias the input buffer
	out := make([]byte, len(v))
	copy(out, v)
	return out, n, nil
}

func consumeTimestamp(typ protowire.Type, b []byte) (time.Time, int, error) {
	raw, n, err := consumeBytes(typ, b)
	if err != nil {
		return time.Time{}, 0, err
	}
	var secs, nanos uint64
	err = unmarshalFields(raw, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var (
			m   int
			err error
		)
		switch num {
		case 1:
			secs, m, err = consumeVarint(typ, b)
		case 2:
			nanos, m, err = consumeVarint(typ, b)
		}
		return m, err
	})
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("timestamp: %w", err)
	}
	if nanos > 999999999 {
		return time.Time{}, 0, fmt.Errorf("timestamp: nanos out of range: %d", nanos)
	}
	return time.Unix(int64(secs), int64(nanos)).UTC(), n, nil
}
