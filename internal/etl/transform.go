package etl

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"qrstudio/internal/domain"
)

// Transformer rewrites one record. keep=false drops it.
type Transformer interface {
	Transform(Record) (Record, bool)
}

type TransformerFunc func(Record) (Record, bool)

func (f TransformerFunc) Transform(r Record) (Record, bool) { return f(r) }

// ── Built-in transforms ────────────────────────────────────

// FilterTransform keeps records whose field satisfies Op against Value.
type FilterTransform struct {
	Field string
	Op    string // eq | neq | gt | lt | contains | empty | not_empty
	Value any
}

func (t *FilterTransform) Transform(r Record) (Record, bool) {
	v, ok := r.Data[t.Field]
	switch t.Op {
	case "empty":
		return r, !ok || v == nil || fmt.Sprint(v) == ""
	case "not_empty":
		return r, ok && v != nil && fmt.Sprint(v) != ""
	}
	if !ok {
		return r, false
	}
	switch t.Op {
	case "eq":
		return r, fmt.Sprint(v) == fmt.Sprint(t.Value)
	case "neq":
		return r, fmt.Sprint(v) != fmt.Sprint(t.Value)
	case "contains":
		return r, strings.Contains(strings.ToLower(fmt.Sprint(v)), strings.ToLower(fmt.Sprint(t.Value)))
	case "gt":
		return r, toFloat(v) > toFloat(t.Value)
	case "lt":
		return r, toFloat(v) < toFloat(t.Value)
	default:
		return r, true
	}
}

// RenameTransform maps source columns onto the names a QR form expects,
// e.g. "Website" to "url".
type RenameTransform struct {
	Mapping map[string]string
}

func (t *RenameTransform) Transform(r Record) (Record, bool) {
	for from, to := range t.Mapping {
		if v, ok := r.Data[from]; ok {
			delete(r.Data, from)
			r.Data[to] = v
		}
	}
	return r, true
}

type SelectTransform struct {
	Fields []string
}

func (t *SelectTransform) Transform(r Record) (Record, bool) {
	kept := make(map[string]any, len(t.Fields))
	for _, f := range t.Fields {
		if v, ok := r.Data[f]; ok {
			kept[f] = v
		}
	}
	r.Data = kept
	return r, true
}

// DedupeTransform drops records whose Key value was already seen.
type DedupeTransform struct {
	Key  string
	seen map[string]bool
}

func NewDedupeTransform(key string) *DedupeTransform {
	return &DedupeTransform{Key: key, seen: make(map[string]bool)}
}

func (t *DedupeTransform) Transform(r Record) (Record, bool) {
	v := fmt.Sprint(r.Data[t.Key])
	if t.seen[v] {
		return r, false
	}
	t.seen[v] = true
	return r, true
}

type ComputeColumn struct {
	Name       string
	Expression string
}

// ComputeTransform fills columns from templates such as
// "https://example.com/p/{sku}". A template that resolves to a number is
// stored as one.
type ComputeTransform struct {
	Columns []ComputeColumn
}

func (t *ComputeTransform) Transform(r Record) (Record, bool) {
	for _, col := range t.Columns {
		r.Data[col.Name] = expand(r.Data, col.Expression)
	}
	return r, true
}

func expand(data map[string]any, expr string) any {
	var b strings.Builder
	for {
		open := strings.IndexByte(expr, '{')
		if open < 0 {
			b.WriteString(expr)
			break
		}
		end := strings.IndexByte(expr[open:], '}')
		if end < 0 {
			b.WriteString(expr)
			break
		}
		b.WriteString(expr[:open])
		key := expr[open+1 : open+end]
		if v, ok := data[key]; ok && v != nil {
			b.WriteString(fmt.Sprint(v))
		}
		expr = expr[open+end+1:]
	}
	out := b.String()
	if f, err := strconv.ParseFloat(out, 64); err == nil {
		return f
	}
	return out
}

// SortTransform is applied to the whole batch by ApplyBatchSort.
type SortTransform struct {
	Field     string
	Direction string // asc | desc
}

func (t *SortTransform) Transform(r Record) (Record, bool) { return r, true }

type LimitTransform struct {
	Count int
	seen  int
}

func NewLimitTransform(count int) *LimitTransform {
	return &LimitTransform{Count: count}
}

func (t *LimitTransform) Transform(r Record) (Record, bool) {
	t.seen++
	return r, t.seen <= t.Count
}

// TypeCastTransform converts a field to number, string or bool.
type TypeCastTransform struct {
	Field    string
	CastType string
}

func (t *TypeCastTransform) Transform(r Record) (Record, bool) {
	v, ok := r.Data[t.Field]
	if !ok {
		return r, true
	}
	switch t.CastType {
	case "number":
		r.Data[t.Field] = toFloat(v)
	case "string":
		r.Data[t.Field] = fmt.Sprint(v)
	case "bool":
		r.Data[t.Field] = toBool(v)
	}
	return r, true
}

// ── Chain ──────────────────────────────────────────────────

// BuildTransformers turns stored transform configs into a chain. Dedupe on
// dedupeKey, when set, runs last.
func BuildTransformers(configs []TransformConfig, dedupeKey string) ([]Transformer, error) {
	var ts []Transformer
	for i, tc := range configs {
		bad := func(why string) error {
			return fmt.Errorf("%w: transform %d (%s): %s", domain.ErrValidation, i, tc.Type, why)
		}
		switch tc.Type {
		case "filter":
			field, _ := tc.Config["field"].(string)
			op, _ := tc.Config["op"].(string)
			if field == "" || op == "" {
				return nil, bad("field and op are required")
			}
			ts = append(ts, &FilterTransform{Field: field, Op: op, Value: tc.Config["value"]})

		case "rename":
			mapping, ok := tc.Config["mapping"].(map[string]any)
			if !ok {
				return nil, bad("mapping is required")
			}
			m := make(map[string]string, len(mapping))
			for k, v := range mapping {
				m[k] = fmt.Sprint(v)
			}
			ts = append(ts, &RenameTransform{Mapping: m})

		case "select":
			fields, _ := tc.Config["fields"].([]any)
			if len(fields) == 0 {
				return nil, bad("fields is required")
			}
			ff := make([]string, len(fields))
			for j, f := range fields {
				ff[j] = fmt.Sprint(f)
			}
			ts = append(ts, &SelectTransform{Fields: ff})

		case "compute":
			columns, _ := tc.Config["columns"].([]any)
			var cols []ComputeColumn
			for _, c := range columns {
				cm, _ := c.(map[string]any)
				name, _ := cm["name"].(string)
				expr, _ := cm["expression"].(string)
				if name != "" && expr != "" {
					cols = append(cols, ComputeColumn{Name: name, Expression: expr})
				}
			}
			if len(cols) == 0 {
				return nil, bad("at least one column is required")
			}
			ts = append(ts, &ComputeTransform{Columns: cols})

		case "sort":
			field, _ := tc.Config["field"].(string)
			dir, _ := tc.Config["direction"].(string)
			if field == "" {
				return nil, bad("field is required")
			}
			ts = append(ts, &SortTransform{Field: field, Direction: dir})

		case "limit":
			count, _ := tc.Config["count"].(float64)
			if count <= 0 {
				return nil, bad("count must be positive")
			}
			ts = append(ts, NewLimitTransform(int(count)))

		case "type_cast":
			field, _ := tc.Config["field"].(string)
			castType, _ := tc.Config["castType"].(string)
			if field == "" || castType == "" {
				return nil, bad("field and castType are required")
			}
			ts = append(ts, &TypeCastTransform{Field: field, CastType: castType})

		default:
			return nil, bad("unknown type")
		}
	}
	if dedupeKey != "" {
		ts = append(ts, NewDedupeTransform(dedupeKey))
	}
	return ts, nil
}

// ApplyTransformers runs the chain on r, stopping at the first drop.
func ApplyTransformers(r Record, ts []Transformer) (Record, bool) {
	for _, t := range ts {
		var keep bool
		if r, keep = t.Transform(r); !keep {
			return r, false
		}
	}
	return r, true
}

// ApplyBatchSort applies the first SortTransform of the chain, stably.
func ApplyBatchSort(records []Record, ts []Transformer) []Record {
	for _, t := range ts {
		st, ok := t.(*SortTransform)
		if !ok {
			continue
		}
		sorted := append([]Record(nil), records...)
		desc := st.Direction == "desc"
		sort.SliceStable(sorted, func(i, j int) bool {
			c := compareValues(sorted[i].Data[st.Field], sorted[j].Data[st.Field])
			if desc {
				return c > 0
			}
			return c < 0
		})
		return sorted
	}
	return records
}

func compareValues(a, b any) int {
	fa, aok := toFloatOK(a)
	fb, bok := toFloatOK(b)
	if aok && bok {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloatOK(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toFloat(v any) float64 {
	f, _ := toFloatOK(v)
	return f
}

func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "y", "1":
			return true
		}
	case float64:
		return b != 0
	case int:
		return b != 0
	}
	return false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
