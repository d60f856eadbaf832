package firefly

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/dvloznov/papermes/internal/apperrors"
)

// Records returned by the ledger carry more keys than we model, and the set grows
// with every ledger release. Known keys decode into the typed struct; the rest are
// kept in an Extra map and written back unchanged.

var knownKeysCache sync.Map // reflect.Type -> map[string]struct{}

func knownKeys(v any) map[string]struct{} {
	return structKeys(reflect.TypeOf(v))
}

func structKeys(t reflect.Type) map[string]struct{} {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := knownKeysCache.Load(t); ok {
		return cached.(map[string]struct{})
	}

	keys := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		// Untagged embedded structs are flattened by encoding/json.
		if f.Anonymous && tag == "" && f.Type.Kind() == reflect.Struct {
			for k := range structKeys(f.Type) {
				keys[k] = struct{}{}
			}
			continue
		}
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "" {
			name = f.Name
		}
		keys[name] = struct{}{}
	}
	knownKeysCache.Store(t, keys)
	return keys
}

// marshalRecord encodes known (a struct without custom marshalers) and merges extra
// keys that the struct did not already emit.
func marshalRecord(known any, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(known)
	if err != nil || len(extra) == 0 {
		return data, err
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	keys := knownKeys(known)
	for k, v := range extra {
		if _, isKnown := keys[k]; isKnown {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

// unmarshalRecord decodes data into known and returns the keys it does not model.
// Every key in required must be present and non-null.
func unmarshalRecord(data []byte, known any, required ...string) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, schemaErr("", "expected a JSON object", err)
	}
	for _, key := range required {
		v, ok := raw[key]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return nil, &apperrors.SchemaError{Field: key, Message: "required field is missing"}
		}
	}
	if err := json.Unmarshal(data, known); err != nil {
		return nil, schemaErr("", "decode record", err)
	}

	keys := knownKeys(known)
	var extra map[string]json.RawMessage
	for k, v := range raw {
		if _, isKnown := keys[k]; isKnown {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}
	return extra, nil
}

func schemaErr(field, msg string, err error) error {
	var se *apperrors.SchemaError
	if errors.As(err, &se) {
		return err
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && field == "" {
		field = typeErr.Field
	}
	return &apperrors.SchemaError{Field: field, Message: msg, Err: err}
}
