package ref

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrResolution is matched by every *ResolutionError.
	ErrResolution = errors.New("ref: cannot resolve type")
	// ErrRecordNotFound is matched by every *RecordNotFoundError.
	ErrRecordNotFound = errors.New("ref: record not found")
	// ErrDecode is matched by every *DecodeError.
	ErrDecode = errors.New("ref: malformed reference")
	// ErrLookup is matched by every *LookupError.
	ErrLookup = errors.New("ref: record lookup failed")

	ErrNoKind             = errors.New("ref: no kind registered for tag")
	ErrDuplicateKind      = errors.New("ref: kind already registered for tag")
	ErrInvalidTag         = errors.New("ref: invalid tag")
	ErrDuplicateName      = errors.New("ref: type name already registered")
	ErrDuplicateType      = errors.New("ref: type already registered")
	ErrInvalidKeyPart     = errors.New("ref: key part is empty or contains the delimiter")
	ErrMissingKey         = errors.New("ref: record has no primary key value")
	// ErrMalformedKey is wrapped by kinds whose Lookup cannot use the key
	// parts at all. The codec reports it as a *DecodeError.
	ErrMalformedKey = errors.New("ref: malformed record key")
	ErrAmbiguousString    = errors.New("ref: plain string reads as a tagged reference")
	ErrUnsupportedVersion = errors.New("ref: unsupported envelope version")
)

// ResolutionError reports a type name that cannot be mapped to a Go type,
// or a tag no kind is registered for.
type ResolutionError struct {
	Tag  Tag
	Name string
	Err  error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ref: cannot resolve %s type %q: %v", e.Tag, e.Name, e.Err)
	}
	return fmt.Sprintf("ref: cannot resolve %s type %q", e.Tag, e.Name)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

// RecordNotFoundError reports that a store-backed reference points at a
// record that no longer exists.
type RecordNotFoundError struct {
	Tag      Tag
	TypeName string
	Keys     []string
	Err      error
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("ref: %s record %s:%s not found", e.Tag, e.TypeName, strings.Join(e.Keys, Delimiter))
}

func (e *RecordNotFoundError) Unwrap() error { return e.Err }

// Ref rebuilds the reference string of the missing record.
func (e *RecordNotFoundError) Ref() string {
	return string(e.Tag) + Delimiter + e.TypeName + Delimiter + strings.Join(e.Keys, Delimiter)
}

func (e *RecordNotFoundError) Is(target error) bool { return target == ErrRecordNotFound }

// LookupError wraps a store failure other than "not found".
type LookupError struct {
	Tag      Tag
	TypeName string
	Keys     []string
	Err      error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("ref: lookup %s record %s:%s: %v", e.Tag, e.TypeName, strings.Join(e.Keys, Delimiter), e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

func (e *LookupError) Is(target error) bool { return target == ErrLookup }

// DecodeError reports an OBJ payload or a queue payload that cannot be
// decoded.
type DecodeError struct {
	Ref string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("ref: decode %q: %v", truncate(e.Ref, 64), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// IsRecordNotFound reports whether err carries a *RecordNotFoundError.
func IsRecordNotFound(err error) bool {
	var nf *RecordNotFoundError
	return errors.As(err, &nf)
}

// IsPermanent reports whether err is a decode-time failure that will not go
// away on redelivery.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrResolution) || errors.Is(err, ErrDecode)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
