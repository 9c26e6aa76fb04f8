package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jdziat/simple-delay/pkg/core"
)

func TestValidateTypeName(t *testing.T) {
	for _, name := range []string{"Invoice", "billing.Invoice", "line_item", "a", "shop.v2.Cart", "Send-Email_V2"} {
		assert.NoError(t, ValidateTypeName(name), name)
		assert.True(t, IsValidTypeName(name), name)
	}

	tests := map[string]error{
		"":                       core.ErrInvalidTypeName,
		"123-task":               core.ErrInvalidTypeName,
		"-task":                  core.ErrInvalidTypeName,
		"Invoice Line":           core.ErrInvalidTypeName,
		"task/subtask":           core.ErrInvalidTypeName,
		"Invoice:5":              core.ErrInvalidTypeName,
		strings.Repeat("a", 300): core.ErrTypeNameTooLong,
	}
	for name, want := range tests {
		assert.ErrorIs(t, ValidateTypeName(name), want, name)
		assert.False(t, IsValidTypeName(name), name)
	}
}

func TestValidateMethodName(t *testing.T) {
	for _, name := range []string{"Ship", "ship", "to_s", "_private", "Rebuild2", "send_reminder"} {
		assert.NoError(t, ValidateMethodName(name), name)
	}
	for _, name := range []string{"", "ship!", "to s", "2go", "a.b", "save?", strings.Repeat("m", 300)} {
		assert.ErrorIs(t, ValidateMethodName(name), core.ErrInvalidMethodName, name)
	}
}

func TestValidateQueueName(t *testing.T) {
	for _, name := range []string{"default", "retries", "high-priority", "emails_v2"} {
		assert.NoError(t, ValidateQueueName(name), name)
	}
	assert.ErrorIs(t, ValidateQueueName(""), core.ErrInvalidQueueName)
	assert.ErrorIs(t, ValidateQueueName("queue with spaces"), core.ErrInvalidQueueName)
	assert.ErrorIs(t, ValidateQueueName("mail:high"), core.ErrInvalidQueueName)
	assert.ErrorIs(t, ValidateQueueName(strings.Repeat("q", 300)), core.ErrQueueNameTooLong)
}

func TestValidateUniqueKey(t *testing.T) {
	assert.NoError(t, ValidateUniqueKey("Invoice#send_reminder:5"))
	assert.ErrorIs(t, ValidateUniqueKey(strings.Repeat("k", 256)), core.ErrUniqueKeyTooLong)
}

func TestCheckPayloadSize(t *testing.T) {
	assert.NoError(t, CheckPayloadSize(make([]byte, MaxPayloadSize)))
	assert.ErrorIs(t, CheckPayloadSize(make([]byte, MaxPayloadSize+1)), core.ErrPayloadTooLarge)
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "connection refused", "connection refused"},
		{"keeps whitespace", "error on\nline 2\tcol 3", "error on\nline 2\tcol 3"},
		{"drops control bytes", "error\x00with\x1bnulls\x7f", "errorwithnulls"},
		{"keeps unicode", "réseau indisponible", "réseau indisponible"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeErrorMessage(tt.in))
		})
	}
}

func TestSanitizeErrorMessage_Truncates(t *testing.T) {
	out := SanitizeErrorMessage(strings.Repeat("é", 5000))

	assert.Equal(t, MaxErrorMessageLength, len([]rune(out)))
	assert.True(t, strings.HasSuffix(out, "..."))
}

func TestClamp(t *testing.T) {
	for in, want := range map[int]int{-1: 0, 0: 0, 5: 5, 100: 100, 101: 100, 1000: 100} {
		assert.Equal(t, want, ClampRetries(in), "ClampRetries(%d)", in)
	}
	for in, want := range map[int]int{-1: 1, 0: 1, 10: 10, 1000: 1000, 1001: 1000} {
		assert.Equal(t, want, ClampConcurrency(in), "ClampConcurrency(%d)", in)
	}
}
