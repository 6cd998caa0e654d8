package service

import (
	"github.com/emrgen/ormstore/internal/object"
)

// encrypt replaces the plain values of encrypted fields in values with
// their ciphertext. A new object gets an IV first. When the IV field is
// changed, or all is set, every encrypted field is encrypted again so
// they all stay readable with the stored IV; otherwise only the changed
// encrypted fields are.
func (s *ObjectStore) encrypt(obj *object.Object, values map[string]any, all bool) error {
	cfg := obj.Config()
	if !cfg.HasEncrypted() {
		return nil
	}
	if s.cipher == nil {
		return &EncryptionError{Object: cfg.Name, Field: cfg.IVField, Err: ErrNoCipher}
	}

	iv := obj.String(cfg.IVField)
	if iv == "" {
		fresh, err := s.cipher.NewIV()
		if err != nil {
			return &EncryptionError{Object: cfg.Name, Field: cfg.IVField, Err: err}
		}
		if err := obj.Set(cfg.IVField, fresh); err != nil {
			return err
		}
		iv = fresh
	}
	if obj.IsChanged(cfg.IVField) {
		values[cfg.IVField] = iv
		all = true
	}

	for _, field := range cfg.EncryptedFields() {
		if !all && !obj.IsChanged(field) {
			continue
		}

		value := obj.Get(field)
		if value == nil {
			values[field] = nil
			continue
		}

		enc, err := s.cipher.Encrypt(obj.String(field), iv)
		if err != nil {
			return &EncryptionError{Object: cfg.Name, Field: field, Err: err}
		}
		values[field] = enc
	}

	return nil
}

// decrypt replaces the stored ciphertext of obj with the plain values.
func (s *ObjectStore) decrypt(obj *object.Object) error {
	cfg := obj.Config()
	if !cfg.HasEncrypted() {
		return nil
	}

	iv := obj.String(cfg.IVField)
	for _, field := range cfg.EncryptedFields() {
		if obj.Get(field) == nil {
			continue
		}
		if s.cipher == nil {
			return &EncryptionError{Object: cfg.Name, Field: field, Err: ErrNoCipher}
		}

		plain, err := s.cipher.Decrypt(obj.String(field), iv)
		if err != nil {
			return &EncryptionError{Object: cfg.Name, Field: field, Err: err}
		}
		if err := obj.Assign(field, plain); err != nil {
			return err
		}
	}

	return nil
}
