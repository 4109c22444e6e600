package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"qrstudio/internal/domain"
	"qrstudio/internal/etl"
)

// emitAll streams the records produced by load.
func emitAll(ctx context.Context, load func() ([]etl.Record, error)) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		records, err := load()
		if err != nil {
			errCh <- err
			return
		}
		for _, rec := range records {
			select {
			case out <- rec:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()
	return out, errCh
}

// recordsAt walks a dot path (object keys or array indexes) and converts
// what it finds to records.
func recordsAt(raw any, path string) ([]etl.Record, error) {
	if path != "" {
		for _, part := range strings.Split(path, ".") {
			switch v := raw.(type) {
			case map[string]any:
				next, ok := v[part]
				if !ok {
					return nil, fmt.Errorf("%w: data path %q: key %q not found", domain.ErrValidation, path, part)
				}
				raw = next
			case []any:
				i, err := strconv.Atoi(part)
				if err != nil || i < 0 || i >= len(v) {
					return nil, fmt.Errorf("%w: data path %q: bad index %q", domain.ErrValidation, path, part)
				}
				raw = v[i]
			default:
				return nil, fmt.Errorf("%w: data path %q: %q is not a container", domain.ErrValidation, path, part)
			}
		}
	}

	switch v := raw.(type) {
	case []any:
		records := make([]etl.Record, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				records = append(records, etl.Record{Data: flattenMap(m)})
			}
		}
		return records, nil
	case map[string]any:
		return []etl.Record{{Data: flattenMap(v)}}, nil
	}
	return nil, fmt.Errorf("%w: expected an array of objects", domain.ErrValidation)
}

// flattenMap keeps scalars and stores nested values as JSON text.
func flattenMap(m map[string]any) map[string]any {
	flat := make(map[string]any, len(m))
	for k, v := range m {
		switch v.(type) {
		case string, float64, bool, nil:
			flat[k] = v
		default:
			b, _ := json.Marshal(v)
			flat[k] = string(b)
		}
	}
	return flat
}

// inferSchema lists every key seen, typed by its first non-nil value.
func inferSchema(records []etl.Record) *etl.Schema {
	types := make(map[string]string)
	for _, rec := range records {
		for k, v := range rec.Data {
			if t, ok := types[k]; !ok || (t == "" && v != nil) {
				types[k] = inferType(v)
			}
		}
	}
	names := make([]string, 0, len(types))
	for k := range types {
		names = append(names, k)
	}
	sort.Strings(names)

	schema := &etl.Schema{Fields: make([]etl.Field, len(names))}
	for i, n := range names {
		t := types[n]
		if t == "" {
			t = "text"
		}
		schema.Fields[i] = etl.Field{Name: n, Type: t}
	}
	return schema
}

func inferType(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case float64, float32, int, int64:
		return "number"
	case bool:
		return "boolean"
	}
	return "text"
}
