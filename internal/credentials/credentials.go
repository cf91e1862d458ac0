package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Credentials are the identity values auto-filled into every form.
type Credentials struct {
	Email string `json:"email" validate:"required,email"`
	Class string `json:"class" validate:"required"`
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name" validate:"required"`
}

var ErrNotFound = errors.New("credentials file not found")

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c Credentials) Validate() error {
	return validate.Struct(c)
}

// DefaultPath is ~/.jphw/credentials.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".jphw", "credentials.json"), nil
}

// Load reads and validates the credentials file. A missing file is
// ErrNotFound; a malformed or incomplete one is a validation error.
func Load(path string) (Credentials, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, ErrNotFound
		}
		return Credentials{}, fmt.Errorf("read credentials: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return Credentials{}, fmt.Errorf("decode credentials: %w", err)
	}
	creds = creds.trimmed()
	if err := creds.Validate(); err != nil {
		return Credentials{}, fmt.Errorf("invalid credentials: %w", err)
	}
	return creds, nil
}

// Save writes indented JSON through a temp file and rename.
func Save(path string, creds Credentials) error {
	creds = creds.trimmed()
	if err := creds.Validate(); err != nil {
		return fmt.Errorf("invalid credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}
	raw, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, append(raw, '\n'), 0o600); err != nil {
		return fmt.Errorf("write credentials tmp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("commit credentials: %w", err)
	}
	return nil
}

func (c Credentials) trimmed() Credentials {
	return Credentials{
		Email: strings.TrimSpace(c.Email),
		Class: strings.TrimSpace(c.Class),
		ID:    strings.TrimSpace(c.ID),
		Name:  strings.TrimSpace(c.Name),
	}
}
