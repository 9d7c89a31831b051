package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// keyPayload mirrors the shape hashed for every key: positional arguments
// plus named ones. encoding/json writes map keys in sorted order, so equal
// argument sets always hash the same.
type keyPayload struct {
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

// Key returns the cache key for a positional argument list
func Key(args ...any) string {
	return KeyWith(args, nil)
}

// KeyWith returns the cache key for positional and named arguments.
// Values that cannot be marshaled are rendered with %v.
func KeyWith(args []any, kwargs map[string]any) string {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}

	data, err := json.Marshal(keyPayload{Args: args, Kwargs: kwargs})
	if err != nil {
		data = []byte(fmt.Sprintf("%v|%v", args, kwargs))
	}

	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
