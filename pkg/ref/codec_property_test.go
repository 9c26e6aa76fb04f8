package ref

import (
	"context"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: Decode(Encode(v)) == v for symbols, integers, strings and slices.
func TestCodecRoundTripProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	codec := MustCodec(NewRegistry())
	ctx := context.Background()

	properties.Property("symbols round trip", prop.ForAll(
		func(name string) bool {
			s, err := codec.Encode(Symbol(name))
			if err != nil {
				return false
			}
			v, err := codec.Decode(ctx, s)
			return err == nil && v == Symbol(name)
		},
		gen.AnyString(),
	))

	properties.Property("integers round trip with their type", prop.ForAll(
		func(n int64) bool {
			s, err := codec.Encode(n)
			if err != nil {
				return false
			}
			v, err := codec.Decode(ctx, s)
			return err == nil && v == n
		},
		gen.Int64(),
	))

	properties.Property("untagged strings pass through", prop.ForAll(
		func(str string) bool {
			if _, tagged := Parse(str); tagged {
				return true
			}
			s, err := codec.Encode(str)
			if err != nil || s != str {
				return false
			}
			v, err := codec.Decode(ctx, s)
			return err == nil && v == str
		},
		gen.AnyString(),
	))

	properties.Property("string slices round trip", prop.ForAll(
		func(in []string) bool {
			s, err := codec.Encode(in)
			if err != nil {
				return false
			}
			v, err := codec.Decode(ctx, s)
			if err != nil {
				return false
			}
			out, ok := v.([]string)
			if !ok || len(out) != len(in) {
				return false
			}
			for i := range in {
				if in[i] != out[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// Property: DisplayName of a record reference is always Type#method.
func TestDisplayNameProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("record references display as Type#method", prop.ForAll(
		func(id uint32, method string) bool {
			ref := "AR:Account:" + strconv.FormatUint(uint64(id), 10)
			return DisplayName(ref, method) == "Account#"+method
		},
		gen.UInt32(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
