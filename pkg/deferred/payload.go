package deferred

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/jdziat/simple-delay/pkg/ref"
	"github.com/jdziat/simple-delay/pkg/security"
)

// Payload positions of the legacy array form
// [object, method, args, queue, run_in, kwargs].
const (
	posObject = iota
	posMethod
	posArgs
	posQueue
	posRunIn
	posKwargs
)

// Normalize turns a queue payload into a Call. It accepts a *Call or Call,
// JSON bytes or text, a map with the keys object, method, args, queue,
// run_in and kwargs, or the legacy array [object, method, args, queue,
// run_in] with an optional trailing kwargs map. The method is not checked
// against the receiver. Malformed payloads yield a *ref.DecodeError.
func Normalize(payload any) (*Call, error) {
	switch p := payload.(type) {
	case *Call:
		if p == nil {
			return nil, invalidPayload("nil call")
		}
		cp := *p
		return validated(&cp)
	case Call:
		return validated(&p)
	case []byte:
		return normalizeJSON(p)
	case json.RawMessage:
		return normalizeJSON(p)
	case string:
		return normalizeJSON([]byte(p))
	case map[string]any:
		return fromMap(p)
	case []any:
		return fromTuple(p)
	case []string:
		tuple := make([]any, len(p))
		for i, s := range p {
			tuple[i] = s
		}
		return fromTuple(tuple)
	case nil:
		return nil, invalidPayload("empty payload")
	}
	return nil, invalidPayload(fmt.Sprintf("unsupported payload type %T", payload))
}

func invalidPayload(reason string) error {
	return &ref.DecodeError{Ref: "payload", Err: fmt.Errorf("%w: %s", ErrInvalidPayload, reason)}
}

func normalizeJSON(b []byte) (*Call, error) {
	if err := security.CheckPayloadSize(b); err != nil {
		return nil, &ref.DecodeError{Ref: "payload", Err: err}
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &ref.DecodeError{Ref: string(b), Err: err}
	}
	switch p := v.(type) {
	case map[string]any:
		return fromMap(p)
	case []any:
		return fromTuple(p)
	}
	return nil, invalidPayload(fmt.Sprintf("JSON %T is neither an object nor an array", v))
}

func fromMap(m map[string]any) (*Call, error) {
	return build(m["object"], m["method"], m["args"], m["queue"], m["run_in"], m["kwargs"])
}

func fromTuple(t []any) (*Call, error) {
	if len(t) < posMethod+1 || len(t) > posKwargs+1 {
		return nil, invalidPayload(fmt.Sprintf("array payload has %d elements", len(t)))
	}
	at := func(i int) any {
		if i < len(t) {
			return t[i]
		}
		return nil
	}
	return build(at(posObject), at(posMethod), at(posArgs), at(posQueue), at(posRunIn), at(posKwargs))
}

func build(object, method, args, queue, runIn, kwargs any) (*Call, error) {
	c := &Call{}
	var ok bool
	if c.Object, ok = object.(string); !ok {
		return nil, invalidPayload(fmt.Sprintf("object is %T, want string", object))
	}
	if c.Method, ok = method.(string); !ok {
		return nil, invalidPayload(fmt.Sprintf("method is %T, want string", method))
	}
	if queue != nil {
		if c.Queue, ok = queue.(string); !ok {
			return nil, invalidPayload(fmt.Sprintf("queue is %T, want string", queue))
		}
	}

	var err error
	if c.Args, err = stringList(args); err != nil {
		return nil, err
	}
	if c.Kwargs, err = stringMap(kwargs); err != nil {
		return nil, err
	}
	if c.RunIn, err = seconds(runIn); err != nil {
		return nil, err
	}
	return validated(c)
}

func validated(c *Call) (*Call, error) {
	if err := security.ValidateMethodName(c.Method); err != nil {
		return nil, &ref.DecodeError{Ref: c.Method, Err: err}
	}
	if c.Queue == "" {
		c.Queue = DefaultQueue
	}
	if c.RunIn < 0 {
		return nil, invalidPayload("negative run_in")
	}
	if c.Args == nil {
		c.Args = []string{}
	}
	return c, nil
}

func stringList(v any) ([]string, error) {
	switch list := v.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return list, nil
	case []any:
		out := make([]string, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, invalidPayload(fmt.Sprintf("args[%d] is %T, want string", i, item))
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, invalidPayload(fmt.Sprintf("args is %T, want array", v))
}

func stringMap(v any) (map[string]string, error) {
	switch m := v.(type) {
	case nil:
		return nil, nil
	case map[string]string:
		if len(m) == 0 {
			return nil, nil
		}
		return m, nil
	case map[string]any:
		if len(m) == 0 {
			return nil, nil
		}
		out := make(map[string]string, len(m))
		for k, item := range m {
			s, ok := item.(string)
			if !ok {
				return nil, invalidPayload(fmt.Sprintf("kwargs[%q] is %T, want string", k, item))
			}
			out[k] = s
		}
		return out, nil
	}
	return nil, invalidPayload(fmt.Sprintf("kwargs is %T, want object", v))
}

func seconds(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, invalidPayload(fmt.Sprintf("run_in %q is not a number", n))
		}
		return wholeSeconds(f)
	case float64:
		return wholeSeconds(n)
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, invalidPayload("run_in overflows")
		}
		return int64(n), nil
	}
	return 0, invalidPayload(fmt.Sprintf("run_in is %T, want number", v))
}

func wholeSeconds(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, invalidPayload(fmt.Sprintf("run_in %v is not a whole number of seconds", f))
	}
	return int64(f), nil
}
