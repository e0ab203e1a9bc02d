package docs

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"go.mongodb.org/mongo-driver/bson"
)

// Format identifies the wire encoding of a document payload passed to
// FromFormat/ToFormat.
type Format int

const (
	FormatJSON Format = iota
	FormatBSON
	FormatMsgPack
	FormatPrimitive
)

// FromFormat transcodes an externally-encoded document into the canonical
// internal JSON representation every Store operation works in terms of.
func FromFormat(format Format, payload []byte) ([]byte, error) {
	switch format {
	case FormatJSON:
		if !json.Valid(payload) {
			return nil, fmt.Errorf("ukv: argument-wrong: payload is not valid JSON")
		}
		return payload, nil
	case FormatBSON:
		var m bson.M
		if err := bson.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("ukv: argument-wrong: invalid bson payload: %w", err)
		}
		return json.Marshal(m)
	case FormatMsgPack:
		var v interface{}
		if err := msgpack.Unmarshal(payload, &v); err != nil {
			return nil, fmt.Errorf("ukv: argument-wrong: invalid msgpack payload: %w", err)
		}
		return json.Marshal(v)
	case FormatPrimitive:
		// A bare scalar/string/binary blob is wrapped into a single-value
		// JSON document under the canonical key "value".
		var raw interface{}
		if err := json.Unmarshal(payload, &raw); err != nil {
			raw = string(payload)
		}
		return json.Marshal(map[string]interface{}{"value": raw})
	default:
		return nil, fmt.Errorf("ukv: argument-wrong: unknown document format %d", format)
	}
}

// ToFormat transcodes the canonical internal JSON representation into the
// requested output format.
func ToFormat(format Format, canonical []byte) ([]byte, error) {
	switch format {
	case FormatJSON:
		return canonical, nil
	case FormatBSON:
		var m bson.M
		if err := json.Unmarshal(canonical, &m); err != nil {
			return nil, err
		}
		return bson.Marshal(m)
	case FormatMsgPack:
		var v interface{}
		if err := json.Unmarshal(canonical, &v); err != nil {
			return nil, err
		}
		return msgpack.Marshal(v)
	case FormatPrimitive:
		var wrapped map[string]interface{}
		if err := json.Unmarshal(canonical, &wrapped); err != nil {
			return nil, err
		}
		return json.Marshal(wrapped["value"])
	default:
		return nil, fmt.Errorf("ukv: argument-wrong: unknown document format %d", format)
	}
}
