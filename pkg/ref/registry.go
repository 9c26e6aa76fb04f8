package ref

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/jdziat/simple-delay/pkg/security"
)

// Registry maps type names to Go types. CLASS references, store-backed
// records and typed OBJ payloads all resolve their type through it, so
// both the scheduling and the executing process must register the same
// names.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}

// builtinTypes are registered under their Go spelling so OBJ payloads of
// common values decode back to the exact type they were encoded from.
var builtinTypes = []any{
	false,
	int(0), int8(0), int16(0), int32(0), int64(0),
	uint(0), uint8(0), uint16(0), uint32(0), uint64(0),
	float32(0), float64(0),
	[]byte(nil),
	time.Time{},
	time.Duration(0),
	[]string(nil),
	[]int(nil),
	[]any(nil),
	map[string]any(nil),
	map[string]string(nil),
	map[string]int(nil),
}

// NewRegistry creates a Registry preloaded with the builtin value types.
func NewRegistry() *Registry {
	r := &Registry{
		byName: make(map[string]reflect.Type),
		byType: make(map[reflect.Type]string),
	}
	for _, v := range builtinTypes {
		t := reflect.TypeOf(v)
		r.byName[t.String()] = t
		r.byType[t] = t.String()
	}
	return r
}

// Register records sample's type under name. Pointer samples register their
// element type. Names follow the queue naming rules and never contain ':'.
func (r *Registry) Register(name string, sample any) error {
	if sample == nil {
		return fmt.Errorf("ref: register %q: nil sample", name)
	}
	return r.RegisterType(name, reflect.TypeOf(sample))
}

// RegisterType is Register for a reflect.Type.
func (r *Registry) RegisterType(name string, t reflect.Type) error {
	if err := security.ValidateTypeName(name); err != nil {
		return fmt.Errorf("ref: register %q: %w", name, err)
	}
	t = indirect(t)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		if existing == t {
			return nil
		}
		return fmt.Errorf("%w: %q is %s", ErrDuplicateName, name, existing)
	}
	if existing, ok := r.byType[t]; ok {
		return fmt.Errorf("%w: %s is %q", ErrDuplicateType, t, existing)
	}
	r.byName[name] = t
	r.byType[t] = name
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, sample any) {
	if err := r.Register(name, sample); err != nil {
		panic(err)
	}
}

// TypeOf returns the type registered under name.
func (r *Registry) TypeOf(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// NameOf returns the name t (or its element type, for pointers) is registered under.
func (r *Registry) NameOf(t reflect.Type) (string, bool) {
	if t == nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byType[indirect(t)]
	return name, ok
}

// Names returns every user-registered name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		if security.IsValidTypeName(name) && !isBuiltinName(name) {
			names = append(names, name)
		}
	}
	return names
}

func isBuiltinName(name string) bool {
	for _, v := range builtinTypes {
		if reflect.TypeOf(v).String() == name {
			return true
		}
	}
	return false
}

func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
