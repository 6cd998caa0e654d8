package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/emrgen/ormstore/internal/compress"
	"github.com/emrgen/ormstore/internal/entity"
	"github.com/emrgen/ormstore/internal/model"
	"github.com/emrgen/ormstore/internal/object"
	"github.com/emrgen/ormstore/internal/orm"
	"gorm.io/gorm"
)

// Version is a decoded revision snapshot of an object.
type Version struct {
	Number    int64
	ActorID   int64
	CreatedAt time.Time
	// Data holds the field values of the snapshot with encrypted fields
	// already decrypted.
	Data map[string]any
}

// Versions returns the revisions of an object, oldest first.
func (s *ObjectStore) Versions(ctx context.Context, name string, id int64) ([]*Version, error) {
	m, err := s.models.Model(name)
	if err != nil {
		return nil, err
	}
	if !m.Config().RevControl {
		return nil, fmt.Errorf("%w: %s", ErrNotVersioned, name)
	}

	rows, err := m.Slave().ListVersions(ctx, m.Name(), id)
	if err != nil {
		return nil, wrap(name, "versions", err)
	}

	versions := make([]*Version, 0, len(rows))
	for _, row := range rows {
		v, err := s.decodeVersion(m.Config(), row)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// Version returns one revision of an object.
func (s *ObjectStore) Version(ctx context.Context, name string, id, number int64) (*Version, error) {
	m, err := s.models.Model(name)
	if err != nil {
		return nil, err
	}
	if !m.Config().RevControl {
		return nil, fmt.Errorf("%w: %s", ErrNotVersioned, name)
	}

	row, err := s.getVersion(ctx, m, id, number)
	if err != nil {
		return nil, err
	}
	return s.decodeVersion(m.Config(), row)
}

func (s *ObjectStore) getVersion(ctx context.Context, m *orm.Model, id, number int64) (*model.Version, error) {
	row, err := m.Master().GetVersion(ctx, m.Name(), id, number)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s %d version %d", ErrVersionNotFound, m.Name(), id, number)
	}
	return row, err
}

// applyVersion sets the values of a stored revision on obj as pending
// changes. Engine maintained fields are left alone.
func (s *ObjectStore) applyVersion(ctx context.Context, m *orm.Model, obj *object.Object, number int64) error {
	row, err := s.getVersion(ctx, m, obj.ID(), number)
	if err != nil {
		return err
	}

	v, err := s.decodeVersion(m.Config(), row)
	if err != nil {
		return err
	}

	for name, value := range v.Data {
		if m.Config().Fields[name].System {
			continue
		}
		if err := obj.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

// snapshot encodes the current values of obj. Encrypted fields are stored
// encrypted with the IV of the object, which is kept in the snapshot.
func (s *ObjectStore) snapshot(obj *object.Object) ([]byte, error) {
	cfg := obj.Config()
	data := obj.Data()

	if cfg.HasEncrypted() {
		if s.cipher == nil {
			return nil, &EncryptionError{Object: cfg.Name, Field: cfg.IVField, Err: ErrNoCipher}
		}

		iv := obj.String(cfg.IVField)
		if iv == "" {
			fresh, err := s.cipher.NewIV()
			if err != nil {
				return nil, &EncryptionError{Object: cfg.Name, Field: cfg.IVField, Err: err}
			}
			iv = fresh
		}
		data[cfg.IVField] = iv

		for _, field := range cfg.EncryptedFields() {
			if data[field] == nil {
				continue
			}
			enc, err := s.cipher.Encrypt(obj.String(field), iv)
			if err != nil {
				return nil, &EncryptionError{Object: cfg.Name, Field: field, Err: err}
			}
			data[field] = enc
		}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return s.compress.Encode(raw)
}

func (s *ObjectStore) decodeVersion(cfg *entity.Config, row *model.Version) (*Version, error) {
	codec, err := compress.Get(row.Compression)
	if err != nil {
		return nil, err
	}
	raw, err := codec.Decode(row.Data)
	if err != nil {
		return nil, fmt.Errorf("%s version %d: %w", cfg.Name, row.Number, err)
	}

	var stored map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&stored); err != nil {
		return nil, fmt.Errorf("%s version %d: %w", cfg.Name, row.Number, err)
	}

	data := make(map[string]any, len(stored))
	for name, value := range stored {
		f, ok := cfg.Fields[name]
		if !ok {
			// field dropped from the entity since the snapshot was taken
			continue
		}
		v, err := f.Filter(value)
		if err != nil {
			return nil, err
		}
		data[name] = v
	}

	if cfg.HasEncrypted() {
		iv, _ := data[cfg.IVField].(string)
		for _, field := range cfg.EncryptedFields() {
			enc, ok := data[field].(string)
			if !ok {
				continue
			}
			if s.cipher == nil {
				return nil, &EncryptionError{Object: cfg.Name, Field: field, Err: ErrNoCipher}
			}
			plain, err := s.cipher.Decrypt(enc, iv)
			if err != nil {
				return nil, &EncryptionError{Object: cfg.Name, Field: field, Err: err}
			}
			data[field] = plain
		}
	}

	return &Version{
		Number:    row.Number,
		ActorID:   row.ActorID,
		CreatedAt: row.CreatedAt,
		Data:      data,
	}, nil
}
