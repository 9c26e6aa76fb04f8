package ref

import "context"

// Locator identifies a store-backed record: its registered type name and
// its primary key values in declared order.
type Locator struct {
	TypeName string
	Keys     []string
}

// Kind is one store-backed reference variant. The codec tries kinds in the
// order they were supplied; the first whose Locate reports true encodes the
// value.
type Kind interface {
	// Tag is the reference tag this kind reads and writes.
	Tag() Tag

	// Composite reports whether references carry more than one key.
	Composite() bool

	// Locate reports whether v is a record this kind owns and, if so, where it lives.
	Locate(v any) (Locator, bool, error)

	// Lookup loads the record at loc.
	Lookup(ctx context.Context, loc Locator) (any, error)

	// IsNotFound reports whether err, returned by Lookup, means the record is gone.
	IsNotFound(err error) bool
}
