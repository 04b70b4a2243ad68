package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// record always produces identical bytes. IDs serialize through
// MarshalText as decimal strings; timestamps as RFC 3339 with nanoseconds.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("store: CBOR decoder initialization failed: " + err.Error())
	}
}

// marshalRecord encodes an entity for its record column.
func marshalRecord(v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return data, nil
}

// unmarshalRecord decodes a record column into v.
func unmarshalRecord(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal record: %w", err)
	}
	return nil
}

// marshalBucket encodes an index bucket. Empty buckets are never stored.
func marshalBucket(keys []string) ([]byte, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("marshal bucket: refusing to encode empty bucket")
	}
	data, err := encMode.Marshal(keys)
	if err != nil {
		return nil, fmt.Errorf("marshal bucket: %w", err)
	}
	return data, nil
}

// unmarshalBucket decodes an index bucket.
func unmarshalBucket(data []byte) ([]string, error) {
	var keys []string
	if err := decMode.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("unmarshal bucket: %w", err)
	}
	return keys, nil
}
