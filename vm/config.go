// ABOUTME: Machine configuration: stack capacity, initial threshold and heap limit
// ABOUTME: Configs load from TOML files whose keys are the Go field names

package vm

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"

	"github.com/naoina/toml"
)

// Config holds the construction-time settings of a Machine
type Config struct {
	// StackCapacity is the maximum number of roots on the stack
	StackCapacity int

	// InitialThreshold is the allocation count that triggers the first
	// collection, and the value the threshold resets to when a collection
	// leaves the heap empty
	InitialThreshold int

	// HeapLimit caps the number of live objects; 0 disables the cap
	HeapLimit int
}

// DefaultConfig contains the default settings
var DefaultConfig = Config{
	StackCapacity:    256,
	InitialThreshold: 8,
	HeapLimit:        0,
}

// Validate checks that every setting is usable
func (c Config) Validate() error {
	switch {
	case c.StackCapacity <= 0:
		return fmt.Errorf("%w: StackCapacity must be positive, got %d", ErrInvalidConfig, c.StackCapacity)
	case c.InitialThreshold <= 0:
		return fmt.Errorf("%w: InitialThreshold must be positive, got %d", ErrInvalidConfig, c.InitialThreshold)
	case c.HeapLimit < 0:
		return fmt.Errorf("%w: HeapLimit must not be negative, got %d", ErrInvalidConfig, c.HeapLimit)
	}
	return nil
}

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// LoadConfig reads a TOML file on top of DefaultConfig. Settings missing
// from the file keep their default value.
func LoadConfig(file string) (Config, error) {
	cfg := DefaultConfig

	f, err := os.Open(file)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg)
	// Add file name to errors that have a line number.
	var lerr *toml.LineError
	if errors.As(err, &lerr) {
		err = errors.New(file + ", " + err.Error())
	}
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// EncodeTOML renders the config in the format LoadConfig reads
func (c Config) EncodeTOML() ([]byte, error) {
	return tomlSettings.Marshal(&c)
}
