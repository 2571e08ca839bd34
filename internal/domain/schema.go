package domain

// FieldType is the declared backend type of a schema field.
type FieldType string

// Field types recognized by the policy layer. Anything else coming from the
// backend mapping is carried through verbatim and treated as unqueryable.
const (
	TypeKeyword FieldType = "keyword"
	TypeText    FieldType = "text"
	TypeDate    FieldType = "date"
	TypeInteger FieldType = "integer"
	TypeLong    FieldType = "long"
	TypeFloat   FieldType = "float"
	TypeDouble  FieldType = "double"
	TypeIP      FieldType = "ip"
	TypeNested  FieldType = "nested"
)

// Numeric reports whether the type admits range comparisons as a number.
func (t FieldType) Numeric() bool {
	switch t {
	case TypeInteger, TypeLong, TypeFloat, TypeDouble:
		return true
	}
	return false
}

// Schema is the flattened view of one index mapping: a flat set of dotted
// field paths, their declared types, and the analyzer assigned to each
// analyzed text field (empty for non-analyzed fields).
type Schema struct {
	Index     string
	Types     map[string]FieldType
	Analyzers map[string]string
}

// Has reports whether a dotted field path exists in the schema.
func (s Schema) Has(field string) bool {
	_, ok := s.Types[field]
	return ok
}

// Type returns the declared type of a field, or "" when unknown.
func (s Schema) Type(field string) FieldType {
	return s.Types[field]
}

// Analyzed reports whether the field's stored values are analyzer-tokenized.
func (s Schema) Analyzed(field string) bool {
	return s.Analyzers[field] != ""
}

// Fields returns the flat field set. The slice is a copy; order is undefined.
func (s Schema) Fields() []string {
	out := make([]string, 0, len(s.Types))
	for f := range s.Types {
		out = append(out, f)
	}
	return out
}
