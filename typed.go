package gandewa

import (
	"context"
	"encoding/json"
	"fmt"
)

// DecodeInto converts a dynamically-typed transport result into the
// caller's struct. Raw JSON bytes decode directly; anything else takes a
// marshal/unmarshal round trip through encoding/json.
func DecodeInto(raw any, target any) error {
	switch v := raw.(type) {
	case nil:
		return nil
	case json.RawMessage:
		return json.Unmarshal(v, target)
	case []byte:
		return json.Unmarshal(v, target)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode intermediate value: %w", err)
		}
		return json.Unmarshal(encoded, target)
	}
}

// CallTyped executes a call and decodes the result into T. Decode
// failures surface as ValidationError so they share the taxonomy with
// every other client failure.
func CallTyped[T any](ctx context.Context, c *Client, path string, input any, opts ...CallOption) (T, error) {
	var zero T

	raw, err := c.Call(ctx, path, input, opts...)
	if err != nil {
		return zero, err
	}

	if typed, ok := raw.(T); ok {
		return typed, nil
	}

	var out T
	if err := DecodeInto(raw, &out); err != nil {
		return zero, &ValidationError{
			Path: path,
			Issues: []ValidationIssue{{
				Code:    "decode_failed",
				Message: fmt.Sprintf("result does not decode into %T: %v", out, err),
			}},
		}
	}
	return out, nil
}

// NextTyped pulls the next data event decoded into T. Terminal
// conditions pass through unchanged from Next.
func NextTyped[T any](ctx context.Context, s *Subscription) (T, error) {
	var zero T

	raw, err := s.Next(ctx)
	if err != nil {
		return zero, err
	}

	if typed, ok := raw.(T); ok {
		return typed, nil
	}

	var out T
	if err := DecodeInto(raw, &out); err != nil {
		return zero, &ValidationError{
			Path: s.path,
			Issues: []ValidationIssue{{
				Code:    "decode_failed",
				Message: fmt.Sprintf("event does not decode into %T: %v", out, err),
			}},
		}
	}
	return out, nil
}
