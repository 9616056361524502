package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"time"
)

const (
	// LogFormatPlain is a format for colored text
	LogFormatPlain = "plain"
	// LogFormatJSON is a format for json output
	LogFormatJSON = "json"

	// Double-sign state backends.
	BackendFile      = "file"
	BackendGoLevelDB = "goleveldb"
	BackendMemDB     = "memdb"

	// Tie-break policies for same height/round/pol_round slots.
	TieBreakStep     = "step"
	TieBreakTypeCode = "type-code"
	TieBreakNone     = "none"

	// Softsign key types.
	KeyTypeEd25519   = "ed25519"
	KeyTypeSecp256k1 = "secp256k1"

	// DefaultLedgerKeyID is the key id of the single ledgertm provider when
	// none is configured.
	DefaultLedgerKeyID = "ledgertm"
)

// NOTE: Most of the structs & relevant comments + the
// default configuration options were used to manually
// generate the config.toml. Please reflect any changes
// made here in the defaultConfigTemplate constant in
// config/toml.go
// NOTE: libs/cli must know to look in the config dir!
var (
	DefaultKMSDir    = ".kms"
	defaultConfigDir = "config"
	defaultDataDir   = "data"

	defaultConfigFileName = "config.toml"
	defaultStateDirName   = "state"

	defaultConfigFilePath = filepath.Join(defaultConfigDir, defaultConfigFileName)
	defaultStateDirPath   = filepath.Join(defaultDataDir, defaultStateDirName)

	// chain ids end up in file names and database keys
	chainIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,49}$`)
)

// Config defines the top level configuration for the KMS
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Chains the KMS signs for
	Validators []*ValidatorConfig `mapstructure:"validator"`

	// Options for services
	Providers       *ProvidersConfig       `mapstructure:"providers"`
	DoubleSign      *DoubleSignConfig      `mapstructure:"double-sign"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns a default configuration for the KMS
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		Validators:      []*ValidatorConfig{},
		Providers:       DefaultProvidersConfig(),
		DoubleSign:      DefaultDoubleSignConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		Validators:      []*ValidatorConfig{{ChainID: "kms_test"}},
		Providers:       DefaultProvidersConfig(),
		DoubleSign:      TestDoubleSignConfig(),
		Instrumentation: TestInstrumentationConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	cfg.Providers.RootDir = root
	cfg.DoubleSign.RootDir = root
	return cfg
}

// ChainIDs returns the chain ids of the configured validators.
func (cfg *Config) ChainIDs() []string {
	ids := make([]string, 0, len(cfg.Validators))
	for _, v := range cfg.Validators {
		ids = append(ids, v.ChainID)
	}
	return ids
}

// Validator returns the configuration of chainID, or nil.
func (cfg *Config) Validator(chainID string) *ValidatorConfig {
	for _, v := range cfg.Validators {
		if v.ChainID == chainID {
			return v
		}
	}
	return nil
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(cfg.Validators))
	for i, v := range cfg.Validators {
		if err := v.ValidateBasic(); err != nil {
			return fmt.Errorf("error in [[validator]] section %d: %w", i, err)
		}
		if seen[v.ChainID] {
			return fmt.Errorf("error in [[validator]] section %d: duplicate chain-id %q", i, v.ChainID)
		}
		seen[v.ChainID] = true
	}
	if err := cfg.Providers.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [providers] section: %w", err)
	}
	if err := cfg.DoubleSign.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [double-sign] section: %w", err)
	}
	if err := cfg.Instrumentation.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [instrumentation] section: %w", err)
	}
	return nil
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration for the KMS
type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	// Output level for logging, including package level options
	LogLevel string `mapstructure:"log-level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log-format"`
}

// DefaultBaseConfig returns a default base configuration for the KMS
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		LogLevel:  DefaultLogLevel,
		LogFormat: LogFormatPlain,
	}
}

// TestBaseConfig returns a base configuration for testing the KMS
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.LogLevel = "debug"
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return errors.New("unknown log format (must be 'plain' or 'json')")
	}
	return nil
}

// DefaultLogLevel defines a default log level as INFO.
const DefaultLogLevel = "info"

//-----------------------------------------------------------------------------
// ValidatorConfig

// ValidatorConfig binds a chain to the key that signs for it.
type ValidatorConfig struct {
	// Chain the validator participates in
	ChainID string `mapstructure:"chain-id"`

	// Key id in the keyring; empty selects the single configured key
	KeyID string `mapstructure:"key-id"`
}

// ValidateBasic performs basic validation.
func (cfg *ValidatorConfig) ValidateBasic() error {
	return ValidateChainID(cfg.ChainID)
}

// ValidateChainID checks that chainID is usable as a file name and key.
func ValidateChainID(chainID string) error {
	if !chainIDPattern.MatchString(chainID) {
		return fmt.Errorf("invalid chain-id %q (want %s)", chainID, chainIDPattern)
	}
	return nil
}

//-----------------------------------------------------------------------------
// ProvidersConfig

// ProvidersConfig lists the signing backends to load into the keyring.
type ProvidersConfig struct {
	RootDir string `mapstructure:"home"`

	SoftSign []*SoftSignConfig `mapstructure:"softsign"`
	LedgerTM []*LedgerTMConfig `mapstructure:"ledgertm"`
}

// SoftSignConfig configures a software key read from a key file.
type SoftSignConfig struct {
	KeyID string `mapstructure:"key-id"`

	// Path to the key file, relative to the home directory
	Path string `mapstructure:"path"`

	// ed25519 | secp256k1
	KeyType string `mapstructure:"key-type"`
}

// LedgerTMConfig configures the Ledger Tendermint validator app. Only one
// may be configured.
type LedgerTMConfig struct {
	KeyID string `mapstructure:"key-id"`
}

// DefaultProvidersConfig returns an empty provider list.
func DefaultProvidersConfig() *ProvidersConfig {
	return &ProvidersConfig{
		SoftSign: []*SoftSignConfig{},
		LedgerTM: []*LedgerTMConfig{},
	}
}

// KeyFile returns the full path of a softsign key file.
func (cfg *ProvidersConfig) KeyFile(s *SoftSignConfig) string {
	return rootify(s.Path, cfg.RootDir)
}

// ValidateBasic checks each provider entry. The single ledgertm instance
// rule is enforced when the keyring is loaded.
func (cfg *ProvidersConfig) ValidateBasic() error {
	for i, s := range cfg.SoftSign {
		if s.KeyID == "" {
			return fmt.Errorf("softsign %d: key-id can't be empty", i)
		}
		if s.Path == "" {
			return fmt.Errorf("softsign %d: path can't be empty", i)
		}
		switch s.KeyType {
		case KeyTypeEd25519, KeyTypeSecp256k1, "":
		default:
			return fmt.Errorf("softsign %d: unknown key-type %q", i, s.KeyType)
		}
	}
	return nil
}

//-----------------------------------------------------------------------------
// DoubleSignConfig

// DoubleSignConfig configures the persistent high-water-mark guard.
type DoubleSignConfig struct {
	RootDir string `mapstructure:"home"`

	// Storage backend for the high-water-marks: file | goleveldb | memdb
	// * file: one text record per chain, replaced atomically
	// * goleveldb: a single database under state-dir
	// * memdb: in memory only, for tests
	Backend string `mapstructure:"backend"`

	// Directory holding the high-water-marks, relative to the home directory
	StateDir string `mapstructure:"state-dir"`

	// How message types order within one height/round/pol_round:
	// step | type-code | none
	TieBreak string `mapstructure:"tie-break"`

	// Bound on a single provider signature
	SignTimeout time.Duration `mapstructure:"sign-timeout"`

	// Bound on persisting a high-water-mark after signing
	CommitTimeout time.Duration `mapstructure:"commit-timeout"`

	// allowMemDB is only set by TestDoubleSignConfig; a memdb backend read
	// from a config file fails validation.
	allowMemDB bool
}

// DefaultDoubleSignConfig returns a default configuration for the guard.
func DefaultDoubleSignConfig() *DoubleSignConfig {
	return &DoubleSignConfig{
		Backend:       BackendFile,
		StateDir:      defaultStateDirPath,
		TieBreak:      TieBreakStep,
		SignTimeout:   5 * time.Second,
		CommitTimeout: 2 * time.Second,
	}
}

// TestDoubleSignConfig returns a configuration for testing the guard.
func TestDoubleSignConfig() *DoubleSignConfig {
	cfg := DefaultDoubleSignConfig()
	cfg.Backend = BackendMemDB
	cfg.allowMemDB = true
	cfg.SignTimeout = 500 * time.Millisecond
	cfg.CommitTimeout = 500 * time.Millisecond
	return cfg
}

// StateDirPath returns the full path to the state directory.
func (cfg *DoubleSignConfig) StateDirPath() string {
	return rootify(cfg.StateDir, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *DoubleSignConfig) ValidateBasic() error {
	switch cfg.Backend {
	case BackendFile, BackendGoLevelDB:
	case BackendMemDB:
		if !cfg.allowMemDB {
			return errors.New("memdb backend forgets every high-water-mark on restart; use file or goleveldb")
		}
	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	switch cfg.TieBreak {
	case TieBreakStep, TieBreakTypeCode, TieBreakNone:
	default:
		return fmt.Errorf("unknown tie-break %q", cfg.TieBreak)
	}
	if cfg.StateDir == "" && cfg.Backend != BackendMemDB {
		return errors.New("state-dir can't be empty")
	}
	if cfg.SignTimeout <= 0 {
		return errors.New("sign-timeout must be positive")
	}
	if cfg.CommitTimeout <= 0 {
		return errors.New("commit-timeout must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are registered with the default
	// registerer.
	Prometheus bool `mapstructure:"prometheus"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus: false,
		Namespace:  "kms",
	}
}

// TestInstrumentationConfig returns a default configuration for metrics
// reporting.
func TestInstrumentationConfig() *InstrumentationConfig {
	return DefaultInstrumentationConfig()
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg.Prometheus && cfg.Namespace == "" {
		return errors.New("namespace can't be empty when prometheus is enabled")
	}
	return nil
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
