package deferred

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	timeType    = reflect.TypeOf(time.Time{})
)

// KwargTag is the struct tag naming the keyword a field binds to.
const KwargTag = "kwarg"

// methodNames returns the names tried for method, in order.
func methodNames(method string) []string {
	exported := exportedName(method)
	if exported == method {
		return []string{method}
	}
	return []string{method, exported}
}

// exportedName turns snake_case and lowerCamel names into CamelCase.
func exportedName(name string) string {
	var b strings.Builder
	for _, part := range strings.Split(name, "_") {
		if part == "" {
			continue
		}
		r := []rune(part)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

// findMethod resolves method on target. A reflect.Type target resolves
// against a zero value of the type first, then against the type value.
func findMethod(target any, method string) (reflect.Value, bool) {
	if target == nil {
		return reflect.Value{}, false
	}
	names := methodNames(method)

	if t, ok := target.(reflect.Type); ok {
		if m, ok := methodByName(reflect.New(t), names); ok {
			return m, true
		}
		return methodByName(reflect.ValueOf(t), names)
	}

	v := reflect.ValueOf(target)
	if m, ok := methodByName(v, names); ok {
		return m, true
	}
	if v.Kind() != reflect.Pointer {
		p := reflect.New(v.Type())
		p.Elem().Set(v)
		return methodByName(p, names)
	}
	return reflect.Value{}, false
}

func methodByName(v reflect.Value, names []string) (reflect.Value, bool) {
	for _, name := range names {
		if m := v.MethodByName(name); m.IsValid() {
			return m, true
		}
	}
	return reflect.Value{}, false
}

func receiverName(target any) string {
	if t, ok := target.(reflect.Type); ok {
		return t.String()
	}
	return fmt.Sprintf("%T", target)
}

// kwargsShaped reports whether t can receive keyword arguments.
func kwargsShaped(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Struct:
		return t != timeType
	case reflect.Pointer:
		return t.Elem().Kind() == reflect.Struct && t.Elem() != timeType
	case reflect.Map:
		return t.Key().Kind() == reflect.String
	}
	return false
}

// invoke calls m with ctx (when its first parameter is a context.Context),
// the positional arguments and the keyword arguments, and returns the
// method's error result unchanged.
func invoke(ctx context.Context, m reflect.Value, method string, args []any, kwargs map[string]any) error {
	mt := m.Type()
	in := make([]reflect.Value, 0, mt.NumIn())

	first := 0
	if mt.NumIn() > 0 && mt.In(0) == contextType {
		in = append(in, reflect.ValueOf(ctx))
		first = 1
	}

	last := mt.NumIn() - 1
	useKwargs := false
	switch {
	case len(kwargs) > 0:
		if last < first || mt.IsVariadic() || !kwargsShaped(mt.In(last)) {
			return &ArgumentError{Method: method, Param: "kwargs", Err: errors.New("method takes no keyword arguments")}
		}
		useKwargs = true
	case !mt.IsVariadic() && last >= first && mt.NumIn()-first == len(args)+1 && kwargsShaped(mt.In(last)):
		// Keyword parameter left at its zero value.
		useKwargs = true
	}

	positional := mt.NumIn() - first
	if useKwargs {
		positional--
	}
	if mt.IsVariadic() {
		if len(args) < positional-1 {
			return &ArgumentError{Method: method, Param: "arity", Err: fmt.Errorf("want at least %d positional arguments, got %d", positional-1, len(args))}
		}
	} else if len(args) != positional {
		return &ArgumentError{Method: method, Param: "arity", Err: fmt.Errorf("want %d positional arguments, got %d", positional, len(args))}
	}

	for i, a := range args {
		var pt reflect.Type
		if mt.IsVariadic() && i >= positional-1 {
			pt = mt.In(first + positional - 1).Elem()
		} else {
			pt = mt.In(first + i)
		}
		v, err := convertArg(a, pt)
		if err != nil {
			return &ArgumentError{Method: method, Param: fmt.Sprintf("#%d", i+1), Err: err}
		}
		in = append(in, v)
	}

	if useKwargs {
		v, err := bindKwargs(kwargs, mt.In(last))
		if err != nil {
			return &ArgumentError{Method: method, Param: "kwargs", Err: err}
		}
		in = append(in, v)
	}

	return resultError(m.Call(in))
}

// resultError returns the method's trailing error result, if it has one.
func resultError(out []reflect.Value) error {
	if len(out) == 0 {
		return nil
	}
	last := out[len(out)-1]
	if !last.Type().Implements(errorType) {
		return nil
	}
	switch last.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if last.IsNil() {
			return nil
		}
	}
	return last.Interface().(error)
}

// convertArg fits a decoded value to parameter type pt.
func convertArg(a any, pt reflect.Type) (reflect.Value, error) {
	if a == nil {
		return reflect.Zero(pt), nil
	}
	v := reflect.ValueOf(a)
	vt := v.Type()

	switch {
	case vt.AssignableTo(pt):
		return v, nil
	case pt.Kind() == reflect.Pointer && vt.AssignableTo(pt.Elem()):
		p := reflect.New(pt.Elem())
		p.Elem().Set(v)
		return p, nil
	case vt.Kind() == reflect.Pointer && !v.IsNil() && vt.Elem().AssignableTo(pt):
		return v.Elem(), nil
	case isNumber(vt.Kind()) && isNumber(pt.Kind()):
		return convertNumber(v, pt)
	case vt.Kind() == reflect.String && pt.Kind() == reflect.String:
		return v.Convert(pt), nil
	}

	out := reflect.New(pt)
	if err := decodeInto(a, out.Interface(), "json"); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot use %T as %s: %w", a, pt, err)
	}
	return out.Elem(), nil
}

func isNumber(k reflect.Kind) bool {
	return isInt(k) || isUint(k) || k == reflect.Float32 || k == reflect.Float64
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

// convertNumber converts between numeric kinds, refusing lossy conversions.
func convertNumber(v reflect.Value, pt reflect.Type) (reflect.Value, error) {
	k := v.Kind()
	switch {
	case isInt(pt.Kind()):
		var n int64
		switch {
		case isInt(k):
			n = v.Int()
		case isUint(k):
			if v.Uint() > math.MaxInt64 {
				return reflect.Value{}, fmt.Errorf("%d overflows %s", v.Uint(), pt)
			}
			n = int64(v.Uint())
		default:
			f := v.Float()
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
				return reflect.Value{}, fmt.Errorf("%v is not a whole %s", f, pt)
			}
			n = int64(f)
		}
		if reflect.Zero(pt).OverflowInt(n) {
			return reflect.Value{}, fmt.Errorf("%d overflows %s", n, pt)
		}
		return reflect.ValueOf(n).Convert(pt), nil

	case isUint(pt.Kind()):
		var n uint64
		switch {
		case isUint(k):
			n = v.Uint()
		case isInt(k):
			if v.Int() < 0 {
				return reflect.Value{}, fmt.Errorf("%d overflows %s", v.Int(), pt)
			}
			n = uint64(v.Int())
		default:
			f := v.Float()
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
				return reflect.Value{}, fmt.Errorf("%v is not a whole %s", f, pt)
			}
			n = uint64(f)
		}
		if reflect.Zero(pt).OverflowUint(n) {
			return reflect.Value{}, fmt.Errorf("%d overflows %s", n, pt)
		}
		return reflect.ValueOf(n).Convert(pt), nil
	}

	return v.Convert(pt), nil
}

// bindKwargs builds the keyword parameter value of type pt.
func bindKwargs(kwargs map[string]any, pt reflect.Type) (reflect.Value, error) {
	switch pt.Kind() {
	case reflect.Map:
		m := reflect.MakeMapWithSize(pt, len(kwargs))
		for _, k := range sortedKeys(kwargs) {
			v, err := convertArg(kwargs[k], pt.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("keyword %q: %w", k, err)
			}
			m.SetMapIndex(reflect.ValueOf(k).Convert(pt.Key()), v)
		}
		return m, nil

	case reflect.Pointer:
		p := reflect.New(pt.Elem())
		if err := bindStruct(kwargs, p); err != nil {
			return reflect.Value{}, err
		}
		return p, nil
	}

	p := reflect.New(pt)
	if err := bindStruct(kwargs, p); err != nil {
		return reflect.Value{}, err
	}
	return p.Elem(), nil
}

// bindStruct sets the fields of the struct p points to. Values that fit a
// field as they are go in directly so rehydrated records keep their
// identity; the rest are decoded by mapstructure, which also rejects
// unknown keywords.
func bindStruct(kwargs map[string]any, p reflect.Value) error {
	sv := p.Elem()
	st := sv.Type()
	rest := make(map[string]any)

	for _, k := range sortedKeys(kwargs) {
		val := kwargs[k]
		idx, ok := kwargField(st, k)
		if ok && val != nil && reflect.TypeOf(val).AssignableTo(st.Field(idx).Type) {
			sv.Field(idx).Set(reflect.ValueOf(val))
			continue
		}
		rest[k] = val
	}
	if len(rest) == 0 {
		return nil
	}
	return decodeInto(rest, p.Interface(), KwargTag)
}

// kwargField finds the exported field a keyword binds to: an exact tag
// match first, then a case-insensitive field name match.
func kwargField(st reflect.Type, key string) (int, bool) {
	fallback := -1
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get(KwargTag), ",")
		if tag == "-" {
			continue
		}
		if tag == key {
			return i, true
		}
		if tag == "" && fallback < 0 && strings.EqualFold(f.Name, key) {
			fallback = i
		}
	}
	return fallback, fallback >= 0
}

func decodeInto(input, result any, tagName string) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     tagName,
		Result:      result,
		ErrorUnused: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
