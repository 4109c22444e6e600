package etl

// Field is one column of imported campaign data.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"` // text | number | boolean | datetime
}

// Schema is the column layout reported by a source.
type Schema struct {
	Fields []Field `json:"fields"`
}

func (s *Schema) FieldNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Record is one row on its way from a source into a campaign.
type Record struct {
	Data map[string]any `json:"data"`
}

// Clone copies the top-level column map so transforms never alias source rows.
func (r Record) Clone() Record {
	data := make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		data[k] = v
	}
	return Record{Data: data}
}
