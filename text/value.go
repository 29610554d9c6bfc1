package text

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"strconv"
	"unicode/utf8"
)

// Kind is the serialization kind of a cached value, derived from its flag word.
type Kind uint8

const (
	KindBytes      Kind = iota // flag 0, []byte
	KindText                   // FlagText, string
	KindBoolean                // FlagBoolean, bool
	KindInteger                // FlagInteger, int64 (uint64 above MaxInt64)
	KindStructured             // FlagJSON, JSON document
	KindGeneric                // FlagGeneric, gob encoded Go value
)

func (k Kind) String() string {
	switch k {
	case KindBytes:
		return "bytes"
	case KindText:
		return "text"
	case KindBoolean:
		return "boolean"
	case KindInteger:
		return "integer"
	case KindStructured:
		return "structured"
	case KindGeneric:
		return "generic"
	default:
		return "unknown"
	}
}

// Flag returns the flag word written for values of this kind.
func (k Kind) Flag() uint32 {
	switch k {
	case KindText:
		return FlagText
	case KindBoolean:
		return FlagBoolean
	case KindInteger:
		return FlagInteger
	case KindStructured:
		return FlagJSON
	case KindGeneric:
		return FlagGeneric
	default:
		return FlagBytes
	}
}

// KindOf returns the kind encoded by a flag word.
func KindOf(flags uint32) (Kind, error) {
	if flags&^knownFlags != 0 {
		return 0, protocolError("unknown flag from server: "+strconv.FormatUint(uint64(flags), 10), "")
	}

	switch {
	case flags == FlagBytes:
		return KindBytes, nil
	case flags&FlagBoolean != 0:
		return KindBoolean, nil
	case flags&(FlagInteger|FlagLong) != 0:
		return KindInteger, nil
	case flags&FlagText != 0:
		return KindText, nil
	case flags&FlagJSON != 0:
		return KindStructured, nil
	default:
		return KindGeneric, nil
	}
}

// RegisterGeneric records the concrete type of value so it can be stored as
// a generic value and decoded back into the same type. It wraps gob.Register.
func RegisterGeneric(value any) {
	gob.Register(value)
}

// EncodeValue serializes value and returns the data with its flag word.
//
//   - []byte passes through unflagged
//   - string is stored as UTF-8 with FlagText
//   - bool and integers are stringified with FlagBoolean / FlagInteger
//   - json.RawMessage is stored as is with FlagJSON
//   - anything else is JSON encoded with FlagJSON, and gob encoded with
//     FlagGeneric when JSON fails
func EncodeValue(value any) ([]byte, uint32, error) {
	switch v := value.(type) {
	case []byte:
		return v, FlagBytes, nil
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, 0, &ValidationError{Message: "invalid raw JSON value"}
		}
		return []byte(v), FlagJSON, nil
	case string:
		return []byte(v), FlagText, nil
	case bool:
		if v {
			return []byte("1"), FlagBoolean, nil
		}
		return []byte("0"), FlagBoolean, nil
	case int:
		return strconv.AppendInt(nil, int64(v), 10), FlagInteger, nil
	case int8:
		return strconv.AppendInt(nil, int64(v), 10), FlagInteger, nil
	case int16:
		return strconv.AppendInt(nil, int64(v), 10), FlagInteger, nil
	case int32:
		return strconv.AppendInt(nil, int64(v), 10), FlagInteger, nil
	case int64:
		return strconv.AppendInt(nil, v, 10), FlagInteger, nil
	case uint:
		return strconv.AppendUint(nil, uint64(v), 10), FlagInteger, nil
	case uint8:
		return strconv.AppendUint(nil, uint64(v), 10), FlagInteger, nil
	case uint16:
		return strconv.AppendUint(nil, uint64(v), 10), FlagInteger, nil
	case uint32:
		return strconv.AppendUint(nil, uint64(v), 10), FlagInteger, nil
	case uint64:
		return strconv.AppendUint(nil, v, 10), FlagInteger, nil
	}

	if data, err := json.Marshal(value); err == nil {
		return data, FlagJSON, nil
	}

	data, err := encodeGeneric(value)
	if err != nil {
		return nil, 0, &ValidationError{Message: "value cannot be encoded: " + err.Error()}
	}
	return data, FlagGeneric, nil
}

// DecodeValue reverses EncodeValue using the flag word echoed by the server.
//
// Unknown flag bits and data that does not parse for its kind are a
// ProtocolError. The stream itself is still in sync.
func DecodeValue(data []byte, flags uint32) (any, error) {
	kind, err := KindOf(flags)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindBytes:
		return data, nil

	case KindText:
		if !utf8.Valid(data) {
			return nil, protocolError("text value is not valid UTF-8", "")
		}
		return string(data), nil

	case KindBoolean:
		switch string(data) {
		case "1":
			return true, nil
		case "0":
			return false, nil
		}
		return nil, protocolError("invalid boolean value: "+strconv.Quote(string(data)), "")

	case KindInteger:
		if n, err := strconv.ParseInt(string(data), 10, 64); err == nil {
			return n, nil
		}
		n, err := strconv.ParseUint(string(data), 10, 64)
		if err != nil {
			return nil, &ProtocolError{Message: "invalid integer value", Err: err}
		}
		return n, nil

	case KindStructured:
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, &ProtocolError{Message: "invalid JSON value", Err: err}
		}
		return v, nil

	default:
		v, err := decodeGeneric(data)
		if err != nil {
			return nil, &ProtocolError{Message: "invalid generic value", Err: err}
		}
		return v, nil
	}
}

// encodeGeneric gob encodes value through an interface so the concrete type
// travels with the data.
func encodeGeneric(value any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGeneric(data []byte) (any, error) {
	var value any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}
