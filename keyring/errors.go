package keyring

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateKey = errors.New("duplicate key")
	ErrAmbiguousKey = errors.New("no key id given and more than one key is registered")
	ErrKeyNotFound  = errors.New("key not found")
)

// ConfigError is a provider configuration that must stop the process at
// startup.
type ConfigError struct {
	Section string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("error in [%s] section: %v", e.Section, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
