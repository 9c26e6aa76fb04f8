package ref

import (
	"regexp"
	"strings"

	"github.com/jdziat/simple-delay/pkg/security"
)

// Tag names the variant of a reference string. Tags are case-sensitive.
type Tag string

const (
	TagClass  Tag = "CLASS"
	TagAR     Tag = "AR"
	TagDM     Tag = "DM"
	TagMG     Tag = "MG"
	TagSymbol Tag = "SYMBOL"
	TagObject Tag = "OBJ"
)

// Delimiter separates the tag, the type name and each key.
const Delimiter = ":"

var validTag = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

var base64Payload = regexp.MustCompile(`^[A-Za-z0-9+/=]*$`)

// builtinStoreTags holds the store tags every parser knows, and whether
// each carries a composite key.
var builtinStoreTags = map[Tag]bool{
	TagAR: false,
	TagDM: true,
	TagMG: false,
}

// Reference is a parsed reference string.
type Reference struct {
	Tag      Tag
	TypeName string   // CLASS and store tags
	Keys     []string // store tags
	Payload  string   // SYMBOL name or OBJ base64 text
}

// IsStore reports whether the reference needs a store lookup to rehydrate.
func (r Reference) IsStore() bool {
	return len(r.Keys) > 0
}

// String formats the reference back into its wire form.
func (r Reference) String() string {
	switch {
	case r.Tag == TagClass:
		return string(TagClass) + Delimiter + r.TypeName
	case r.IsStore():
		return string(r.Tag) + Delimiter + r.TypeName + Delimiter + strings.Join(r.Keys, Delimiter)
	default:
		return string(r.Tag) + Delimiter + r.Payload
	}
}

// parser matches reference strings against tags in a fixed order.
type parser struct {
	order     []Tag
	composite map[Tag]bool // store tags only
}

var defaultParser = newParser(nil)

// newParser builds the decode order CLASS, AR, DM, MG, extra store tags in
// the order given, SYMBOL, OBJ.
func newParser(extra []Kind) *parser {
	p := &parser{
		order:     []Tag{TagClass, TagAR, TagDM, TagMG},
		composite: make(map[Tag]bool, len(builtinStoreTags)+len(extra)),
	}
	for tag, composite := range builtinStoreTags {
		p.composite[tag] = composite
	}
	for _, k := range extra {
		if _, builtin := builtinStoreTags[k.Tag()]; builtin {
			continue
		}
		p.order = append(p.order, k.Tag())
		p.composite[k.Tag()] = k.Composite()
	}
	p.order = append(p.order, TagSymbol, TagObject)
	return p
}

// Parse reads s with the builtin tags. Strings that match no tag grammar
// report false and are plain strings.
func Parse(s string) (Reference, bool) {
	return defaultParser.parse(s)
}

func (p *parser) parse(s string) (Reference, bool) {
	for _, tag := range p.order {
		prefix := string(tag) + Delimiter
		if !strings.HasPrefix(s, prefix) {
			continue
		}
		payload := s[len(prefix):]

		switch tag {
		case TagClass:
			if !security.IsValidTypeName(payload) {
				return Reference{}, false
			}
			return Reference{Tag: tag, TypeName: payload}, true
		case TagSymbol:
			return Reference{Tag: tag, Payload: payload}, true
		case TagObject:
			if !base64Payload.MatchString(payload) {
				return Reference{}, false
			}
			return Reference{Tag: tag, Payload: payload}, true
		default:
			return parseStore(tag, payload, p.composite[tag])
		}
	}
	return Reference{}, false
}

// parseStore splits TypeName:k1[:k2...]. Single-key tags take exactly one key.
func parseStore(tag Tag, payload string, composite bool) (Reference, bool) {
	parts := strings.Split(payload, Delimiter)
	if len(parts) < 2 || (!composite && len(parts) != 2) {
		return Reference{}, false
	}
	if !security.IsValidTypeName(parts[0]) {
		return Reference{}, false
	}
	for _, key := range parts[1:] {
		if key == "" {
			return Reference{}, false
		}
	}
	return Reference{Tag: tag, TypeName: parts[0], Keys: parts[1:]}, true
}

// formatStore is the encode side of parseStore.
func formatStore(tag Tag, loc Locator) (string, error) {
	if !security.IsValidTypeName(loc.TypeName) {
		return "", &ResolutionError{Tag: tag, Name: loc.TypeName, Err: security.ValidateTypeName(loc.TypeName)}
	}
	if len(loc.Keys) == 0 {
		return "", ErrMissingKey
	}
	for _, key := range loc.Keys {
		if key == "" || strings.Contains(key, Delimiter) {
			return "", ErrInvalidKeyPart
		}
	}
	return Reference{Tag: tag, TypeName: loc.TypeName, Keys: loc.Keys}.String(), nil
}
