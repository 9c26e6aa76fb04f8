// Package gormref provides the AR and DM reference kinds for GORM models.
//
// A model registered with a Store is referenced by its primary key: models
// with a single primary key encode as AR:Name:id, models with a composite
// primary key encode as DM:Name:k1:k2 with the keys in schema order.
package gormref

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/jdziat/simple-delay/pkg/ref"
)

// ErrKeyCount is returned when a reference carries a different number of
// keys than the model's primary key.
var ErrKeyCount = fmt.Errorf("gormref: key count does not match primary key: %w", ref.ErrMalformedKey)

// Store tracks which registered types are GORM models and looks them up.
type Store struct {
	db  *gorm.DB
	reg *ref.Registry

	mu      sync.RWMutex
	schemas map[reflect.Type]*schema.Schema
}

// New creates a Store that looks records up through db and names them
// through reg.
func New(db *gorm.DB, reg *ref.Registry) *Store {
	return &Store{
		db:      db,
		reg:     reg,
		schemas: make(map[reflect.Type]*schema.Schema),
	}
}

// Register records model under name in the registry and makes it
// referenceable. The model must have at least one primary key field.
func (s *Store) Register(name string, model any) error {
	if model == nil {
		return fmt.Errorf("gormref: register %q: nil model", name)
	}
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	stmt := &gorm.Statement{DB: s.db}
	if err := stmt.Parse(reflect.New(t).Interface()); err != nil {
		return fmt.Errorf("gormref: parse %q: %w", name, err)
	}
	if len(stmt.Schema.PrimaryFields) == 0 {
		return fmt.Errorf("gormref: register %q: %w", name, ref.ErrMissingKey)
	}
	if err := s.reg.RegisterType(name, t); err != nil {
		return err
	}

	s.mu.Lock()
	s.schemas[t] = stmt.Schema
	s.mu.Unlock()
	return nil
}

// MustRegister is like Register but panics on error.
func (s *Store) MustRegister(name string, model any) {
	if err := s.Register(name, model); err != nil {
		panic(err)
	}
}

// AR returns the kind for single-key models.
func (s *Store) AR() ref.Kind { return &kind{store: s} }

// DM returns the kind for composite-key models.
func (s *Store) DM() ref.Kind { return &kind{store: s, composite: true} }

// Kinds returns both kinds, for ref.WithKinds.
func (s *Store) Kinds() []ref.Kind { return []ref.Kind{s.AR(), s.DM()} }

func (s *Store) schemaOf(t reflect.Type) (*schema.Schema, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sch, ok := s.schemas[t]
	return sch, ok
}

type kind struct {
	store     *Store
	composite bool
}

func (k *kind) Tag() ref.Tag {
	if k.composite {
		return ref.TagDM
	}
	return ref.TagAR
}

func (k *kind) Composite() bool { return k.composite }

func (k *kind) owns(sch *schema.Schema) bool {
	return (len(sch.PrimaryFields) > 1) == k.composite
}

func (k *kind) Locate(v any) (ref.Locator, bool, error) {
	if v == nil {
		return ref.Locator{}, false, nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ref.Locator{}, false, nil
		}
		rv = rv.Elem()
	}
	sch, ok := k.store.schemaOf(rv.Type())
	if !ok || !k.owns(sch) {
		return ref.Locator{}, false, nil
	}
	name, _ := k.store.reg.NameOf(rv.Type())

	keys := make([]string, 0, len(sch.PrimaryFields))
	for _, f := range sch.PrimaryFields {
		val, zero := f.ValueOf(context.Background(), rv)
		if zero {
			return ref.Locator{}, false, fmt.Errorf("%w: %s.%s", ref.ErrMissingKey, name, f.Name)
		}
		keys = append(keys, fmt.Sprint(val))
	}
	return ref.Locator{TypeName: name, Keys: keys}, true, nil
}

func (k *kind) Lookup(ctx context.Context, loc ref.Locator) (any, error) {
	t, ok := k.store.reg.TypeOf(loc.TypeName)
	if !ok {
		return nil, &ref.ResolutionError{Tag: k.Tag(), Name: loc.TypeName}
	}
	sch, ok := k.store.schemaOf(t)
	if !ok || !k.owns(sch) {
		return nil, &ref.ResolutionError{Tag: k.Tag(), Name: loc.TypeName, Err: fmt.Errorf("not a %s model", k.Tag())}
	}
	if len(loc.Keys) != len(sch.PrimaryFields) {
		return nil, fmt.Errorf("%w: %s wants %d, got %d", ErrKeyCount, loc.TypeName, len(sch.PrimaryFields), len(loc.Keys))
	}

	conds := make(map[string]any, len(loc.Keys))
	for i, f := range sch.PrimaryFields {
		val, err := parseKey(f.FieldType, loc.Keys[i])
		if err != nil {
			return nil, fmt.Errorf("gormref: key %s.%s: %w: %w", loc.TypeName, f.Name, ref.ErrMalformedKey, err)
		}
		conds[f.DBName] = val
	}

	dest := reflect.New(t).Interface()
	if err := k.store.db.WithContext(ctx).Where(conds).Take(dest).Error; err != nil {
		return nil, err
	}
	return dest, nil
}

func (k *kind) IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// parseKey converts a key part back into the primary key field's type.
func parseKey(t reflect.Type, s string) (any, error) {
	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}

	if reflect.PointerTo(base).Implements(textUnmarshaler) {
		ptr := reflect.New(base)
		if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
			return nil, err
		}
		return ptr.Elem().Interface(), nil
	}

	switch base.Kind() {
	case reflect.String:
		return reflect.ValueOf(s).Convert(base).Interface(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, base.Bits())
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(n).Convert(base).Interface(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, base.Bits())
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(n).Convert(base).Interface(), nil
	}
	return s, nil
}

var textUnmarshaler = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
