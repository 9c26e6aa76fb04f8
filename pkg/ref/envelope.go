package ref

import (
	"encoding/base64"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// EnvelopeVersion prefixes every OBJ payload. Decoders reject versions
// they do not know instead of guessing at the layout.
const EnvelopeVersion byte = 1

// envelope is the CBOR body of an OBJ payload. Type is empty for values
// whose type is not registered; those decode into generic Go values.
type envelope struct {
	Type    string          `cbor:"1,keyasint,omitempty"`
	Pointer bool            `cbor:"2,keyasint,omitempty"`
	Data    cbor.RawMessage `cbor:"3,keyasint"`
}

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	opts.TimeTag = cbor.EncTagRequired
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("ref: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("ref: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

func (c *Codec) encodeObject(v any) (string, error) {
	env := envelope{}
	if v != nil {
		t := reflect.TypeOf(v)
		if name, ok := c.registry.NameOf(t); ok {
			env.Type = name
			env.Pointer = t.Kind() == reflect.Pointer
		}
	}

	data, err := cborEncMode.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("ref: encode %T: %w", v, err)
	}
	env.Data = data

	body, err := cborEncMode.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("ref: encode envelope for %T: %w", v, err)
	}

	raw := make([]byte, 0, len(body)+1)
	raw = append(raw, EnvelopeVersion)
	raw = append(raw, body...)
	return string(TagObject) + Delimiter + base64.StdEncoding.EncodeToString(raw), nil
}

func (c *Codec) decodeObject(s, payload string) (any, error) {
	raw, err := base64.StdEncoding.Strict().DecodeString(payload)
	if err != nil {
		return nil, &DecodeError{Ref: s, Err: err}
	}
	if len(raw) == 0 {
		return nil, &DecodeError{Ref: s, Err: fmt.Errorf("empty envelope")}
	}
	if raw[0] != EnvelopeVersion {
		return nil, &DecodeError{Ref: s, Err: fmt.Errorf("%w: %d", ErrUnsupportedVersion, raw[0])}
	}

	var env envelope
	if err := cborDecMode.Unmarshal(raw[1:], &env); err != nil {
		return nil, &DecodeError{Ref: s, Err: err}
	}

	if env.Type == "" {
		var out any
		if err := cborDecMode.Unmarshal(env.Data, &out); err != nil {
			return nil, &DecodeError{Ref: s, Err: err}
		}
		return out, nil
	}

	t, ok := c.registry.TypeOf(env.Type)
	if !ok {
		return nil, &ResolutionError{Tag: TagObject, Name: env.Type}
	}
	if env.Pointer && isCBORNull(env.Data) {
		return reflect.Zero(reflect.PointerTo(t)).Interface(), nil
	}
	ptr := reflect.New(t)
	if err := cborDecMode.Unmarshal(env.Data, ptr.Interface()); err != nil {
		return nil, &DecodeError{Ref: s, Err: err}
	}
	if env.Pointer {
		return ptr.Interface(), nil
	}
	return ptr.Elem().Interface(), nil
}

// isCBORNull reports whether data is the encoding of a nil value.
func isCBORNull(data []byte) bool {
	return len(data) == 1 && (data[0] == 0xf6 || data[0] == 0xf7)
}
