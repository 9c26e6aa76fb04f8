package ref

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
)

var errMemNotFound = errors.New("mem: no such record")

type account struct {
	ID   int
	Name string
}

type seat struct {
	Row    int
	Number int
}

// memKind is an in-memory Kind keyed by the joined key parts.
type memKind struct {
	tag       Tag
	composite bool
	reg       *Registry
	records   map[string]any
	lookups   atomic.Int32
	failWith  error
}

func newMemKind(tag Tag, composite bool, reg *Registry) *memKind {
	return &memKind{tag: tag, composite: composite, reg: reg, records: make(map[string]any)}
}

func (k *memKind) Tag() Tag        { return k.tag }
func (k *memKind) Composite() bool { return k.composite }

func (k *memKind) Locate(v any) (Locator, bool, error) {
	switch r := v.(type) {
	case *account:
		if k.composite {
			return Locator{}, false, nil
		}
		name, _ := k.reg.NameOf(reflect.TypeOf(r))
		return Locator{TypeName: name, Keys: []string{strconv.Itoa(r.ID)}}, true, nil
	case *seat:
		if !k.composite {
			return Locator{}, false, nil
		}
		name, _ := k.reg.NameOf(reflect.TypeOf(r))
		return Locator{TypeName: name, Keys: []string{strconv.Itoa(r.Row), strconv.Itoa(r.Number)}}, true, nil
	}
	return Locator{}, false, nil
}

func (k *memKind) put(loc Locator, v any) {
	k.records[loc.TypeName+Delimiter+strings.Join(loc.Keys, Delimiter)] = v
}

func (k *memKind) Lookup(ctx context.Context, loc Locator) (any, error) {
	k.lookups.Add(1)
	if k.failWith != nil {
		return nil, k.failWith
	}
	v, ok := k.records[loc.TypeName+Delimiter+strings.Join(loc.Keys, Delimiter)]
	if !ok {
		return nil, errMemNotFound
	}
	return v, nil
}

func (k *memKind) IsNotFound(err error) bool {
	return errors.Is(err, errMemNotFound)
}
