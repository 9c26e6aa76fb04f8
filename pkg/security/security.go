package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/simple-delay/pkg/core"
)

// Limits on what callers may put into a deferred call.
const (
	MaxTypeNameLength     = 255
	MaxMethodNameLength   = 255
	MaxQueueNameLength    = 255
	MaxUniqueKeyLength    = 255
	MaxErrorMessageLength = 4096

	// MaxPayloadSize bounds an encoded call in bytes.
	MaxPayloadSize = 1 << 20

	MaxRetries     = 100
	MaxConcurrency = 1000
)

var (
	// Names appear inside reference strings, so ':' is never allowed.
	validName       = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)
	validMethodName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

func checkName(name string, max int, pattern *regexp.Regexp, invalid, tooLong error) error {
	switch {
	case name == "":
		return invalid
	case len(name) > max:
		return tooLong
	case !pattern.MatchString(name):
		return invalid
	}
	return nil
}

// ValidateTypeName checks a name a type is registered under.
func ValidateTypeName(name string) error {
	return checkName(name, MaxTypeNameLength, validName, core.ErrInvalidTypeName, core.ErrTypeNameTooLong)
}

// IsValidTypeName reports whether name passes ValidateTypeName.
func IsValidTypeName(name string) bool {
	return ValidateTypeName(name) == nil
}

// ValidateMethodName accepts identifiers in either Go or snake_case form.
func ValidateMethodName(name string) error {
	return checkName(name, MaxMethodNameLength, validMethodName, core.ErrInvalidMethodName, core.ErrInvalidMethodName)
}

func ValidateQueueName(name string) error {
	return checkName(name, MaxQueueNameLength, validName, core.ErrInvalidQueueName, core.ErrQueueNameTooLong)
}

func ValidateUniqueKey(key string) error {
	if len(key) > MaxUniqueKeyLength {
		return core.ErrUniqueKeyTooLong
	}
	return nil
}

// CheckPayloadSize rejects encoded calls larger than MaxPayloadSize.
func CheckPayloadSize(payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return core.ErrPayloadTooLarge
	}
	return nil
}

// SanitizeErrorMessage drops control characters other than whitespace and
// truncates the result to MaxErrorMessageLength runes so a failing method
// cannot write arbitrary bytes into the last_error column.
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	clean := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			return r
		}
		return -1
	}, msg)

	if utf8.RuneCountInString(clean) > MaxErrorMessageLength {
		runes := []rune(clean)
		clean = string(runes[:MaxErrorMessageLength-3]) + "..."
	}
	return clean
}

// ClampRetries bounds a retry count to [0, MaxRetries].
func ClampRetries(n int) int {
	return max(0, min(n, MaxRetries))
}

// ClampConcurrency bounds a worker count to [1, MaxConcurrency].
func ClampConcurrency(n int) int {
	return max(1, min(n, MaxConcurrency))
}
