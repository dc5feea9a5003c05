package store

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// marshalValue encodes a kv value as JSON.
func marshalValue(v any) ([]byte, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return data, nil
}

// unmarshalValue decodes a stored JSON value into dst.
func unmarshalValue(data []byte, dst any) error {
	if err := sonic.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}
	return nil
}

// marshalHeader encodes response headers for the header column.
// A nil header is stored as an empty object.
func marshalHeader(h map[string][]string) ([]byte, error) {
	if h == nil {
		return []byte("{}"), nil
	}
	return marshalValue(h)
}

func unmarshalHeader(data []byte) (map[string][]string, error) {
	h := map[string][]string{}
	if len(data) == 0 {
		return h, nil
	}
	if err := unmarshalValue(data, &h); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	return h, nil
}
