package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	kmsos "github.com/tendermint/kms/libs/os"
)

// defaultDirPerm is the default permissions used when creating directories.
const defaultDirPerm = 0700

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate")
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

/****** these are for production settings ***********/

// EnsureRoot creates the root, config, and data directories if they don't exist,
// and panics if it fails.
func EnsureRoot(rootDir string) {
	if err := kmsos.EnsureDir(rootDir, defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := kmsos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := kmsos.EnsureDir(filepath.Join(rootDir, defaultDataDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}
}

// ConfigFilePath returns the location of config.toml under rootDir.
func ConfigFilePath(rootDir string) string {
	return filepath.Join(rootDir, defaultConfigFilePath)
}

// WriteConfigFile renders config using the template and writes it to configFilePath.
// This function is called by cmd/kms/commands/init.go
func WriteConfigFile(rootDir string, config *Config) error {
	return config.WriteToTemplate(ConfigFilePath(rootDir))
}

// WriteToTemplate writes the config to the exact file specified by
// the path, in the default toml template and does not mangle the path
// or filename at all.
func (cfg *Config) WriteToTemplate(path string) error {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, cfg); err != nil {
		return err
	}

	return writeFile(path, buffer.Bytes(), 0644)
}

func writeDefaultConfigFileIfNone(rootDir string) error {
	if !kmsos.FileExists(ConfigFilePath(rootDir)) {
		return WriteConfigFile(rootDir, DefaultConfig())
	}
	return nil
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# NOTE: Any path below can be absolute (e.g. "/var/kms/state") or
# relative to the home directory (e.g. "data"). The home directory is
# "$HOME/.kms" by default, but could be changed via $KMSHOME env variable
# or --home cmd flag.

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# Output level for logging, including package level options
log-level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log-format = "{{ .BaseConfig.LogFormat }}"

#######################################################################
###                     Validator Configuration                     ###
#######################################################################

# One [[validator]] table per chain. key-id names the keyring entry that
# signs for the chain; leave it empty when a single key is configured.
{{- range .Validators }}

[[validator]]
chain-id = "{{ .ChainID }}"
key-id = "{{ .KeyID }}"
{{- end }}

#######################################################################
###                      Signing Providers                          ###
#######################################################################

# Software keys are loaded from a JSON key file relative to the home
# directory.
# Only one [[providers.ledgertm]] may be configured.
{{- range .Providers.SoftSign }}

[[providers.softsign]]
key-id = "{{ .KeyID }}"
path = "{{ .Path }}"
key-type = "{{ .KeyType }}"
{{- end }}
{{- range .Providers.LedgerTM }}

[[providers.ledgertm]]
key-id = "{{ .KeyID }}"
{{- end }}

#######################################################################
###                   Double Sign Protection                        ###
#######################################################################
[double-sign]

# Storage backend for the high-water-marks:
#   1) "file" - one text record per chain, replaced atomically
#   2) "goleveldb" - a single database under state-dir
#   3) "memdb" - in memory only, rejected outside of tests
backend = "{{ .DoubleSign.Backend }}"

# Directory holding the high-water-marks
state-dir = "{{ .DoubleSign.StateDir }}"

# How message types order within one height/round/pol_round:
#   1) "step" - proposal, then prevote, then precommit
#   2) "type-code" - by the numeric message type
#   3) "none" - only strictly greater height/round/pol_round may be signed
tie-break = "{{ .DoubleSign.TieBreak }}"

# Bound on a single provider signature
sign-timeout = "{{ .DoubleSign.SignTimeout }}"

# Bound on persisting a high-water-mark after signing
commit-timeout = "{{ .DoubleSign.CommitTimeout }}"

#######################################################################
###                 Instrumentation Configuration                   ###
#######################################################################
[instrumentation]

# When true, signing metrics are registered with the default Prometheus
# registry of the process.
prometheus = {{ .Instrumentation.Prometheus }}

# Instrumentation namespace
namespace = "{{ .Instrumentation.Namespace }}"
`

/****** these are for test settings ***********/

// ResetTestRoot creates a fresh home directory holding a default config
// file and returns the test configuration rooted there.
func ResetTestRoot(dir, testName string) (*Config, error) {
	// create a unique, concurrency-safe test directory under dir
	rootDir, err := os.MkdirTemp(dir, fmt.Sprintf("%s_", testName))
	if err != nil {
		return nil, err
	}
	// ensure config and data subdirs are created
	if err := kmsos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), defaultDirPerm); err != nil {
		return nil, err
	}
	if err := kmsos.EnsureDir(filepath.Join(rootDir, defaultDataDir), defaultDirPerm); err != nil {
		return nil, err
	}

	// Write default config file if missing.
	if err := writeDefaultConfigFileIfNone(rootDir); err != nil {
		return nil, err
	}

	config := TestConfig().SetRoot(rootDir)
	config.Instrumentation.Namespace = testName
	return config, nil
}

func writeFile(filePath string, contents []byte, mode os.FileMode) error {
	if err := os.WriteFile(filePath, contents, mode); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
