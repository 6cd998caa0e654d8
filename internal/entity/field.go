package entity

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// FieldType is the semantic type of a field value.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeText    FieldType = "text"
	TypeInteger FieldType = "integer"
	TypeFloat   FieldType = "float"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
	TypeLink    FieldType = "link"
)

// LinkKind tells how a field references other entities.
type LinkKind string

const (
	LinkNone       LinkKind = "none"
	LinkObject     LinkKind = "object"
	LinkObjectList LinkKind = "object_list"
	LinkManyToMany LinkKind = "many_to_many"
	LinkDictionary LinkKind = "dictionary"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// LinkConfig describes the target of a link field.
type LinkConfig struct {
	Kind LinkKind `yaml:"kind"`
	// Object is the linked entity name for object, object_list and many_to_many links.
	Object string `yaml:"object"`
	// Dictionary holds the allowed keys of a dictionary field.
	Dictionary []string `yaml:"dictionary"`
	// RelationsTable overrides the generated many-to-many table name.
	RelationsTable string `yaml:"relations_table"`
}

// Field is the static description of one entity field.
type Field struct {
	Name      string      `yaml:"-"`
	Type      FieldType   `yaml:"type"`
	Null      bool        `yaml:"null"`
	Default   any         `yaml:"default"`
	Unique    bool        `yaml:"unique"`
	Encrypted bool        `yaml:"encrypted"`
	Length    int         `yaml:"length"`
	Link      *LinkConfig `yaml:"link"`
	// System fields are maintained by the engine itself.
	System bool `yaml:"-"`
}

func (f *Field) LinkKind() LinkKind {
	if f.Link == nil || f.Link.Kind == "" {
		return LinkNone
	}
	return f.Link.Kind
}

func (f *Field) IsObjectLink() bool {
	return f.LinkKind() == LinkObject
}

// IsMultiLink reports whether the field is stored outside of the owning row.
func (f *Field) IsMultiLink() bool {
	kind := f.LinkKind()
	return kind == LinkObjectList || kind == LinkManyToMany
}

func (f *Field) IsManyToMany() bool {
	return f.LinkKind() == LinkManyToMany
}

func (f *Field) IsDictionary() bool {
	return f.LinkKind() == LinkDictionary
}

// LinkedObject returns the target entity name, empty for non object links.
func (f *Field) LinkedObject() string {
	if f.Link == nil {
		return ""
	}
	return f.Link.Object
}

// Stored reports whether the field has a column in the entity table.
func (f *Field) Stored() bool {
	return !f.IsMultiLink()
}

// ColumnType returns the column declaration used when bootstrapping tables.
func (f *Field) ColumnType(dialect string) string {
	postgres := dialect == "postgres"
	switch {
	case f.IsObjectLink(), f.Type == TypeInteger:
		return "BIGINT"
	case f.IsDictionary():
		return "VARCHAR(255)"
	}

	switch f.Type {
	case TypeText:
		return "TEXT"
	case TypeFloat:
		if postgres {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeDate:
		if postgres {
			return "TIMESTAMPTZ"
		}
		return "DATETIME"
	}

	if f.Encrypted {
		return "TEXT"
	}
	length := f.Length
	if length <= 0 {
		length = 255
	}
	return fmt.Sprintf("VARCHAR(%d)", length)
}

// Filter converts v into the canonical Go representation of the field:
// string, int64, float64, bool, time.Time, []int64 (multi links) or nil.
func (f *Field) Filter(v any) (any, error) {
	if f.IsMultiLink() {
		return f.filterIDs(v)
	}

	if isNil(v) {
		return nil, nil
	}

	if f.IsObjectLink() {
		id, err := toInt64(v)
		if err != nil {
			return nil, f.invalid(v, err)
		}
		if id <= 0 {
			return nil, nil
		}
		return id, nil
	}

	if f.IsDictionary() {
		s, err := toString(v)
		if err != nil {
			return nil, f.invalid(v, err)
		}
		if s == "" && f.Null {
			return nil, nil
		}
		if len(f.Link.Dictionary) > 0 && !contains(f.Link.Dictionary, s) {
			return nil, f.invalid(v, fmt.Errorf("%q is not a dictionary key", s))
		}
		return s, nil
	}

	switch f.Type {
	case TypeInteger:
		i, err := toInt64(v)
		if err != nil {
			return nil, f.invalid(v, err)
		}
		return i, nil
	case TypeFloat:
		fl, err := toFloat64(v)
		if err != nil {
			return nil, f.invalid(v, err)
		}
		return fl, nil
	case TypeBoolean:
		b, err := toBool(v)
		if err != nil {
			return nil, f.invalid(v, err)
		}
		return b, nil
	case TypeDate:
		t, err := toTime(v)
		if err != nil {
			return nil, f.invalid(v, err)
		}
		return t, nil
	default:
		s, err := toString(v)
		if err != nil {
			return nil, f.invalid(v, err)
		}
		if f.Length > 0 && !f.Encrypted && f.Type == TypeString && len([]rune(s)) > f.Length {
			return nil, f.invalid(v, fmt.Errorf("longer than %d characters", f.Length))
		}
		return s, nil
	}
}

func (f *Field) filterIDs(v any) (any, error) {
	if isNil(v) {
		return []int64{}, nil
	}

	switch ids := v.(type) {
	case []int64:
		out := make([]int64, len(ids))
		copy(out, ids)
		return out, nil
	case string:
		// comma separated list, as sent by forms and the CLI
		out := make([]int64, 0)
		for _, part := range strings.Split(ids, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := toInt64(part)
			if err != nil {
				return nil, f.invalid(v, err)
			}
			out = append(out, id)
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, f.invalid(v, fmt.Errorf("expected a list of identifiers"))
	}

	out := make([]int64, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		id, err := toInt64(rv.Index(i).Interface())
		if err != nil {
			return nil, f.invalid(v, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func (f *Field) invalid(v any, err error) error {
	return fmt.Errorf("%w: field %s (%s) value %v: %v", ErrInvalidValue, f.Name, f.Type, v, err)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

func toString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case fmt.Stringer:
		return s.String(), nil
	case bool:
		return strconv.FormatBool(s), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	}
	return "", fmt.Errorf("unsupported type %T", v)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(n)), 10, 64)
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		fl := rv.Float()
		if fl != math.Trunc(fl) {
			return 0, fmt.Errorf("%v is not an integer", fl)
		}
		return int64(fl), nil
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(b))
	case []byte:
		return strconv.ParseBool(strings.TrimSpace(string(b)))
	}

	i, err := toInt64(v)
	if err != nil {
		return false, err
	}
	return i != 0, nil
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		return *t, nil
	case []byte:
		return toTime(string(t))
	case string:
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, strings.TrimSpace(t)); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised date %q", t)
	}

	sec, err := toInt64(v)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
