// Package ref converts live values into self-describing reference strings
// and back.
//
// A reference string is either TAG:payload or an untagged plain string:
//
//	CLASS:Widget          a registered type (reflect.Type)
//	AR:Order:5            a record with a single primary key
//	DM:LineItem:5:2       a record with a composite primary key
//	MG:Profile:65f0c...   a document in a document store
//	SYMBOL:go             an interned name (Symbol)
//	OBJ:AQ...             any other value, as base64 of a versioned CBOR envelope
//	hello                 a plain string, passed through untouched
//
// Store-backed tags are served by Kind implementations supplied to the Codec
// at construction; see the gormref and mongoref subpackages. Decode checks
// tags in the fixed order CLASS, AR, DM, MG, other registered store tags,
// SYMBOL, OBJ.
//
// A plain string that already reads like a tagged reference cannot be told
// apart from one. Encode logs a warning for such strings, or rejects them
// when the codec is built with WithStrictStrings.
package ref
