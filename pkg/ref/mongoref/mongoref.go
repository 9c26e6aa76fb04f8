// Package mongoref provides the MG reference kind for MongoDB documents.
//
// A registered document type is referenced by its _id as MG:Name:id.
// ObjectIDs are written in hex; string and integer ids as they are.
package mongoref

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/jdziat/simple-delay/pkg/ref"
)

// ErrNoIDField is returned when a registered type has no field tagged bson:"_id".
var ErrNoIDField = errors.New(`mongoref: document has no bson:"_id" field`)

var objectIDType = reflect.TypeOf(bson.ObjectID{})

type docType struct {
	collection string
	idField    int
	idType     reflect.Type
}

// Store maps registered document types to their collections.
type Store struct {
	db  *mongo.Database
	reg *ref.Registry

	mu    sync.RWMutex
	types map[reflect.Type]docType
}

// New creates a Store reading documents from db.
func New(db *mongo.Database, reg *ref.Registry) *Store {
	return &Store{
		db:    db,
		reg:   reg,
		types: make(map[reflect.Type]docType),
	}
}

// Register records doc under name, stored in collection.
func (s *Store) Register(name, collection string, doc any) error {
	if doc == nil {
		return fmt.Errorf("mongoref: register %q: nil document", name)
	}
	if collection == "" {
		return fmt.Errorf("mongoref: register %q: empty collection", name)
	}
	t := reflect.TypeOf(doc)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	idx, ok := idFieldIndex(t)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoIDField, t)
	}
	if err := s.reg.RegisterType(name, t); err != nil {
		return err
	}

	s.mu.Lock()
	s.types[t] = docType{collection: collection, idField: idx, idType: t.Field(idx).Type}
	s.mu.Unlock()
	return nil
}

// MustRegister is like Register but panics on error.
func (s *Store) MustRegister(name, collection string, doc any) {
	if err := s.Register(name, collection, doc); err != nil {
		panic(err)
	}
}

// Kind returns the MG kind backed by the store.
func (s *Store) Kind() ref.Kind { return &kind{store: s} }

func (s *Store) lookupType(t reflect.Type) (docType, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dt, ok := s.types[t]
	return dt, ok
}

func idFieldIndex(t reflect.Type) (int, bool) {
	if t.Kind() != reflect.Struct {
		return 0, false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("bson"), ",")
		if name == "_id" {
			return i, true
		}
	}
	return 0, false
}

type kind struct {
	store *Store
}

func (k *kind) Tag() ref.Tag    { return ref.TagMG }
func (k *kind) Composite() bool { return false }

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
	dt, ok := k.store.lookupType(rv.Type())
	if !ok {
		return ref.Locator{}, false, nil
	}
	name, _ := k.store.reg.NameOf(rv.Type())

	id := rv.Field(dt.idField)
	if id.IsZero() {
		return ref.Locator{}, false, fmt.Errorf("%w: %s._id", ref.ErrMissingKey, name)
	}
	key, err := formatID(id.Interface())
	if err != nil {
		return ref.Locator{}, false, err
	}
	return ref.Locator{TypeName: name, Keys: []string{key}}, true, nil
}

func (k *kind) Lookup(ctx context.Context, loc ref.Locator) (any, error) {
	t, ok := k.store.reg.TypeOf(loc.TypeName)
	if !ok {
		return nil, &ref.ResolutionError{Tag: ref.TagMG, Name: loc.TypeName}
	}
	dt, ok := k.store.lookupType(t)
	if !ok {
		return nil, &ref.ResolutionError{Tag: ref.TagMG, Name: loc.TypeName, Err: errors.New("not a document type")}
	}
	if len(loc.Keys) != 1 {
		return nil, fmt.Errorf("mongoref: %s wants one key, got %d: %w", loc.TypeName, len(loc.Keys), ref.ErrMalformedKey)
	}
	id, err := parseID(dt.idType, loc.Keys[0])
	if err != nil {
		return nil, fmt.Errorf("mongoref: key %s: %w: %w", loc.TypeName, ref.ErrMalformedKey, err)
	}

	dest := reflect.New(t).Interface()
	err = k.store.db.Collection(dt.collection).
		FindOne(ctx, bson.D{{Key: "_id", Value: id}}).
		Decode(dest)
	if err != nil {
		return nil, err
	}
	return dest, nil
}

func (k *kind) IsNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func formatID(id any) (string, error) {
	switch v := id.(type) {
	case bson.ObjectID:
		return v.Hex(), nil
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	}
	return "", fmt.Errorf("mongoref: unsupported _id type %T", id)
}

func parseID(t reflect.Type, s string) (any, error) {
	if t == objectIDType {
		return bson.ObjectIDFromHex(s)
	}
	switch t.Kind() {
	case reflect.String:
		return s, nil
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, t.Bits())
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(n).Convert(t).Interface(), nil
	}
	return nil, fmt.Errorf("mongoref: unsupported _id type %s", t)
}
