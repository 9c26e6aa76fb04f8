package ref

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
)

// Codec encodes values into reference strings and decodes them back.
// A Codec is safe for concurrent use once built.
type Codec struct {
	registry *Registry
	kinds    []Kind
	byTag    map[Tag]Kind
	parser   *parser
	strict   bool
	logger   *slog.Logger
}

// Option configures a Codec.
type Option interface {
	apply(*Codec)
}

type optionFunc func(*Codec)

func (f optionFunc) apply(c *Codec) { f(c) }

// WithKinds supplies the store-backed kinds, in encode priority order.
func WithKinds(kinds ...Kind) Option {
	return optionFunc(func(c *Codec) {
		c.kinds = append(c.kinds, kinds...)
	})
}

// WithStrictStrings makes Encode reject plain strings that would decode as
// a tagged reference.
func WithStrictStrings() Option {
	return optionFunc(func(c *Codec) {
		c.strict = true
	})
}

// WithLogger sets the logger used for ambiguity warnings.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Codec) {
		if l != nil {
			c.logger = l
		}
	})
}

// NewCodec builds a Codec over reg. A nil reg gets a fresh Registry.
func NewCodec(reg *Registry, opts ...Option) (*Codec, error) {
	if reg == nil {
		reg = NewRegistry()
	}
	c := &Codec{
		registry: reg,
		byTag:    make(map[Tag]Kind),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt.apply(c)
	}

	for _, k := range c.kinds {
		tag := k.Tag()
		if !validTag.MatchString(string(tag)) || tag == TagClass || tag == TagSymbol || tag == TagObject {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTag, tag)
		}
		if composite, builtin := builtinStoreTags[tag]; builtin && composite != k.Composite() {
			return nil, fmt.Errorf("%w: %s kind must report Composite() == %v", ErrInvalidTag, tag, composite)
		}
		if _, dup := c.byTag[tag]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKind, tag)
		}
		c.byTag[tag] = k
	}
	c.parser = newParser(c.kinds)
	return c, nil
}

// MustCodec is like NewCodec but panics on error.
func MustCodec(reg *Registry, opts ...Option) *Codec {
	c, err := NewCodec(reg, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Registry returns the registry the codec resolves type names with.
func (c *Codec) Registry() *Registry {
	return c.registry
}

// Encode turns v into a reference string.
func (c *Codec) Encode(v any) (string, error) {
	if t, ok := v.(reflect.Type); ok {
		return c.encodeClass(t)
	}

	for _, k := range c.kinds {
		loc, ok, err := k.Locate(v)
		if err != nil {
			return "", fmt.Errorf("ref: locate %T as %s: %w", v, k.Tag(), err)
		}
		if !ok {
			continue
		}
		s, err := formatStore(k.Tag(), loc)
		if err != nil {
			return "", fmt.Errorf("ref: encode %T as %s: %w", v, k.Tag(), err)
		}
		return s, nil
	}

	switch val := v.(type) {
	case Symbol:
		return string(TagSymbol) + Delimiter + string(val), nil
	case string:
		return c.encodeString(val)
	}

	return c.encodeObject(v)
}

func (c *Codec) encodeClass(t reflect.Type) (string, error) {
	name, ok := c.registry.NameOf(t)
	if !ok {
		return "", &ResolutionError{Tag: TagClass, Name: t.String()}
	}
	return string(TagClass) + Delimiter + name, nil
}

func (c *Codec) encodeString(s string) (string, error) {
	r, tagged := c.parser.parse(s)
	if !tagged {
		return s, nil
	}
	if c.strict {
		return "", fmt.Errorf("%w: %q", ErrAmbiguousString, truncate(s, 64))
	}
	c.logger.Warn("plain string will decode as a tagged reference",
		"tag", string(r.Tag),
		"value", truncate(s, 64),
	)
	return s, nil
}

// Decode turns a reference string back into a live value. Store-backed
// references are looked up with ctx.
func (c *Codec) Decode(ctx context.Context, s string) (any, error) {
	r, ok := c.parser.parse(s)
	if !ok {
		return s, nil
	}

	switch r.Tag {
	case TagClass:
		t, ok := c.registry.TypeOf(r.TypeName)
		if !ok {
			return nil, &ResolutionError{Tag: TagClass, Name: r.TypeName}
		}
		return t, nil
	case TagSymbol:
		return Symbol(r.Payload), nil
	case TagObject:
		return c.decodeObject(s, r.Payload)
	}

	return c.lookup(ctx, s, r)
}

func (c *Codec) lookup(ctx context.Context, s string, r Reference) (any, error) {
	k, ok := c.byTag[r.Tag]
	if !ok {
		return nil, &ResolutionError{Tag: r.Tag, Name: r.TypeName, Err: ErrNoKind}
	}
	if _, ok := c.registry.TypeOf(r.TypeName); !ok {
		return nil, &ResolutionError{Tag: r.Tag, Name: r.TypeName}
	}

	loc := Locator{TypeName: r.TypeName, Keys: r.Keys}
	v, err := k.Lookup(ctx, loc)
	switch {
	case err == nil:
		return v, nil
	case k.IsNotFound(err):
		return nil, &RecordNotFoundError{Tag: r.Tag, TypeName: r.TypeName, Keys: r.Keys, Err: err}
	case errors.Is(err, ErrMalformedKey):
		return nil, &DecodeError{Ref: s, Err: err}
	case IsPermanent(err):
		return nil, err
	}
	return nil, &LookupError{Tag: r.Tag, TypeName: r.TypeName, Keys: r.Keys, Err: err}
}

// DisplayName labels a call on s without any lookup. Unlike the package
// level DisplayName it also knows the codec's extra store tags.
func (c *Codec) DisplayName(s, method string) string {
	return displayName(c.parser, s, method)
}
