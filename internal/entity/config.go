package entity

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrConfiguration is returned when an entity configuration is missing or invalid.
	ErrConfiguration = errors.New("entity configuration error")
	// ErrUnknownField is returned when a field is not declared by the entity.
	ErrUnknownField = errors.New("unknown field")
	// ErrInvalidValue is returned when a value does not fit the field type.
	ErrInvalidValue = errors.New("invalid field value")
)

const (
	DefaultPrimaryKey = "id"
	DefaultIVField    = "enc_key"

	FieldPublished        = "published"
	FieldPublishedVersion = "published_version"
	FieldLastVersion      = "last_version"
	FieldDateUpdated      = "date_updated"
	FieldEditorID         = "editor_id"
)

// Config is the immutable description of one entity type. It is shared by
// every instance of that type once registered.
type Config struct {
	Name            string            `yaml:"-"`
	Table           string            `yaml:"table"`
	Connection      string            `yaml:"connection"`
	SlaveConnection string            `yaml:"slave_connection"`
	UseDBPrefix     bool              `yaml:"use_db_prefix"`
	PrimaryKey      string            `yaml:"primary_key"`
	ReadOnly        bool              `yaml:"readonly"`
	RevControl      bool              `yaml:"rev_control"`
	Transactional   bool              `yaml:"transactional"`
	SaveHistory     bool              `yaml:"save_history"`
	LinkTitle       string            `yaml:"link_title"`
	IVField         string            `yaml:"iv_field"`
	Fields          map[string]*Field `yaml:"fields"`

	names     []string
	encrypted []string
	multi     []string
	unique    []string
}

// Finalize validates the configuration and adds the engine maintained
// fields. It must run once before the config is shared.
func (c *Config) Finalize() error {
	c.Name = strings.ToLower(strings.TrimSpace(c.Name))
	if c.Name == "" {
		return fmt.Errorf("%w: entity name is empty", ErrConfiguration)
	}
	if c.Table == "" {
		c.Table = c.Name
	}
	if c.PrimaryKey == "" {
		c.PrimaryKey = DefaultPrimaryKey
	}
	if c.Fields == nil {
		c.Fields = make(map[string]*Field)
	}

	for name, f := range c.Fields {
		if f == nil {
			return fmt.Errorf("%w: %s.%s has no definition", ErrConfiguration, c.Name, name)
		}
		f.Name = name
		if f.Type == "" {
			f.Type = TypeString
		}
		if f.Link != nil && f.Link.Kind != LinkNone && f.Link.Kind != "" {
			f.Type = TypeLink
		}
		if err := c.checkField(f); err != nil {
			return err
		}
	}

	if _, ok := c.Fields[c.PrimaryKey]; ok {
		return fmt.Errorf("%w: %s declares its primary key %q as a field", ErrConfiguration, c.Name, c.PrimaryKey)
	}

	if c.RevControl {
		c.addSystem(FieldPublished, &Field{Type: TypeBoolean, Default: false})
		c.addSystem(FieldPublishedVersion, &Field{Type: TypeInteger, Null: true})
		c.addSystem(FieldLastVersion, &Field{Type: TypeInteger, Null: true})
		c.addSystem(FieldDateUpdated, &Field{Type: TypeDate, Null: true})
		c.addSystem(FieldEditorID, &Field{Type: TypeInteger, Null: true})
	}

	c.encrypted = nil
	c.multi = nil
	c.unique = nil
	c.names = make([]string, 0, len(c.Fields))
	for name := range c.Fields {
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)

	for _, name := range c.names {
		f := c.Fields[name]
		if f.Encrypted {
			c.encrypted = append(c.encrypted, name)
		}
		if f.IsMultiLink() {
			c.multi = append(c.multi, name)
		}
		if f.Unique && !f.Encrypted && f.Stored() {
			c.unique = append(c.unique, name)
		}
	}

	if len(c.encrypted) > 0 {
		if c.IVField == "" {
			c.IVField = DefaultIVField
		}
		if _, ok := c.Fields[c.IVField]; !ok {
			c.addSystem(c.IVField, &Field{Type: TypeString, Null: true, Length: 64})
			c.names = append(c.names, c.IVField)
			sort.Strings(c.names)
		}
	}

	for _, f := range c.Fields {
		if f.Default == nil {
			continue
		}
		def, err := f.Filter(f.Default)
		if err != nil {
			return fmt.Errorf("%w: %s.%s default: %v", ErrConfiguration, c.Name, f.Name, err)
		}
		f.Default = def
	}

	return nil
}

func (c *Config) checkField(f *Field) error {
	switch f.Type {
	case TypeString, TypeText, TypeInteger, TypeFloat, TypeBoolean, TypeDate, TypeLink:
	default:
		return fmt.Errorf("%w: %s.%s has unknown type %q", ErrConfiguration, c.Name, f.Name, f.Type)
	}

	switch f.LinkKind() {
	case LinkNone, LinkDictionary:
	case LinkObject, LinkObjectList, LinkManyToMany:
		if f.Link.Object == "" {
			return fmt.Errorf("%w: %s.%s links to no object", ErrConfiguration, c.Name, f.Name)
		}
		f.Link.Object = strings.ToLower(f.Link.Object)
	default:
		return fmt.Errorf("%w: %s.%s has unknown link kind %q", ErrConfiguration, c.Name, f.Name, f.Link.Kind)
	}

	if f.Encrypted && f.Type != TypeString && f.Type != TypeText {
		return fmt.Errorf("%w: %s.%s only string fields can be encrypted", ErrConfiguration, c.Name, f.Name)
	}
	return nil
}

func (c *Config) addSystem(name string, f *Field) {
	if existing, ok := c.Fields[name]; ok {
		existing.System = true
		return
	}
	f.Name = name
	f.System = true
	c.Fields[name] = f
}

// Field returns the named field description.
func (c *Config) Field(name string) (*Field, error) {
	f, ok := c.Fields[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, c.Name, name)
	}
	return f, nil
}

func (c *Config) HasField(name string) bool {
	_, ok := c.Fields[name]
	return ok
}

// FieldNames returns all declared field names in a stable order.
func (c *Config) FieldNames() []string {
	return append([]string(nil), c.names...)
}

func (c *Config) HasEncrypted() bool {
	return len(c.encrypted) > 0
}

func (c *Config) EncryptedFields() []string {
	return append([]string(nil), c.encrypted...)
}

func (c *Config) IsEncrypted(name string) bool {
	f, ok := c.Fields[name]
	return ok && f.Encrypted
}

// MultiLinkFields lists the fields kept in link or relation tables.
func (c *Config) MultiLinkFields() []string {
	return append([]string(nil), c.multi...)
}

func (c *Config) UniqueFields() []string {
	return append([]string(nil), c.unique...)
}

// RelationsTable returns the unprefixed many-to-many table for a field.
func (c *Config) RelationsTable(field string) (string, error) {
	f, err := c.Field(field)
	if err != nil {
		return "", err
	}
	if !f.IsManyToMany() {
		return "", fmt.Errorf("%w: %s.%s is not a many-to-many link", ErrConfiguration, c.Name, field)
	}
	if f.Link.RelationsTable != "" {
		return f.Link.RelationsTable, nil
	}
	return c.Table + "_" + field + "_to_" + f.Link.Object, nil
}
