package ref

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.Register("Widget", widget{}))
	require.NoError(t, reg.Register("Widget", &widget{}), "same pair is idempotent")

	typ, ok := reg.TypeOf("Widget")
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf(widget{}), typ)

	name, ok := reg.NameOf(reflect.TypeOf(&widget{}))
	require.True(t, ok)
	assert.Equal(t, "Widget", name)
}

func TestRegistry_Conflicts(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("Widget", widget{})

	err := reg.Register("Widget", account{})
	assert.ErrorIs(t, err, ErrDuplicateName)

	err = reg.Register("Gadget", widget{})
	assert.ErrorIs(t, err, ErrDuplicateType)
}

func TestRegistry_InvalidNames(t *testing.T) {
	reg := NewRegistry()

	for _, name := range []string{"", "has:colon", "has space", "9starts"} {
		assert.Error(t, reg.Register(name, widget{}), name)
	}
	assert.Error(t, reg.Register("Nil", nil))
}

func TestRegistry_MustRegisterPanics(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("Widget", widget{})

	assert.Panics(t, func() {
		reg.MustRegister("Widget", account{})
	})
}

func TestRegistry_Builtins(t *testing.T) {
	reg := NewRegistry()

	for _, v := range []any{0, int64(0), 1.5, time.Time{}, time.Second, []string{}, map[string]any{}} {
		_, ok := reg.NameOf(reflect.TypeOf(v))
		assert.True(t, ok, "%T", v)
	}

	assert.Empty(t, reg.Names(), "builtins are not listed")

	reg.MustRegister("Widget", widget{})
	assert.Equal(t, []string{"Widget"}, reg.Names())
}

func TestRegistry_NameOfNil(t *testing.T) {
	_, ok := NewRegistry().NameOf(nil)
	assert.False(t, ok)
}
