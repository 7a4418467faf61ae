package agent

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
)

// Sanitize reduces an arbitrary value to something json.Marshal always
// accepts: errors become {name, message, stack}, big integers and
// functions become strings, everything else survives a deep copy through
// a JSON round trip with plain string coercion as the last resort.
func Sanitize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case error:
		return sanitizeError(val)
	case *big.Int:
		return val.String()
	case *big.Float:
		return val.String()
	case big.Int:
		return val.String()
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Sanitize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Sanitize(item)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprint(v)
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = Sanitize(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Sanitize(rv.Index(i).Interface())
		}
		return out
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Sanitize(rv.Elem().Interface())
	}

	// Structs and anything else: JSON round trip, then string coercion.
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Sprint(v)
	}
	return Sanitize(out)
}

type stackTracer interface {
	StackTrace() string
}

func sanitizeError(err error) map[string]any {
	out := map[string]any{
		"name":    fmt.Sprintf("%T", err),
		"message": err.Error(),
		"stack":   "",
	}
	if st, ok := err.(stackTracer); ok {
		out["stack"] = st.StackTrace()
	}
	return out
}
