package vapid

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrDecode is matched by every *DecodeError.
var ErrDecode = errors.New("vapid: invalid base64url key")

// DecodeError reports a key that is not valid URL-safe base64.
type DecodeError struct {
	Input string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("vapid: decode %q: %v", e.Input, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrDecode) match any DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// DecodeKey converts a URL-safe base64 string, with or without padding,
// into raw bytes.
func DecodeKey(s string) ([]byte, error) {
	padding := strings.Repeat("=", (4-len(s)%4)%4)
	std := strings.NewReplacer("-", "+", "_", "/").Replace(s + padding)

	raw, err := base64.StdEncoding.DecodeString(std)
	if err != nil {
		return nil, &DecodeError{Input: s, Err: err}
	}
	return raw, nil
}

// EncodeKey is the inverse of DecodeKey. The output carries no padding.
func EncodeKey(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}
