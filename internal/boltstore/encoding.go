package boltstore

import (
	"bytes"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/schema"
)

// encodeRecord writes rec as a msgpack map with sorted keys, so equal
// records always produce equal bytes. msgpack keeps ints, floats and
// timestamps distinct at any depth.
func encodeRecord(rec ir.Object) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(ir.ToAny(rec))
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeRecord(s *schema.Schema, data []byte) (ir.Object, error) {
	dec := msgpack.GetDecoder()
	dec.Reset(bytes.NewReader(data))
	var raw map[string]any
	err := dec.Decode(&raw)
	msgpack.PutDecoder(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	rec, err := s.Decode(raw)
	if err != nil {
		return nil, err
	}
	return utc(rec).(ir.Object), nil
}

// utc rewrites decoded timestamps, which msgpack yields in local time.
func utc(v ir.Value) ir.Value {
	switch val := v.(type) {
	case ir.Time:
		return ir.NewTime(val.In(time.UTC))
	case ir.List:
		for i, elem := range val {
			val[i] = utc(elem)
		}
	case ir.Object:
		for k, elem := range val {
			val[k] = utc(elem)
		}
	}
	return v
}
