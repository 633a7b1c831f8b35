// Config loading for the fiberplant CLI.
package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/fiberplant/internal/defaults"
	"github.com/mesh-intelligence/fiberplant/internal/logging"
	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyBackend   = "backend"
	cfgKeyDataDir   = "data_dir"
	cfgKeyLogLevel  = "log_level"
	cfgKeyLogFormat = "log_format"
	cfgKeySchema    = "schema"
	cfgKeySubtypes  = "schema.classes.device_subtypes"
	cfgKeyDefaults  = "defaults"

	envLogLevel  = "FIBERPLANT_LOG_LEVEL"
	envLogFormat = "FIBERPLANT_LOG_FORMAT"

	defaultLogLevel = "warn"
)

// configHeader precedes the generated config.yaml.
const configHeader = `# fiberplant workspace configuration
#
# schema names the classes, fields, and relations of the workspace.
# defaults, when present, replaces the standard attribute defaulting rules:
#   defaults:
#     - {class: FiberCable, field: created_on, kind: timestamp, mode: create}
`

// configFile is the structure written to config.yaml.
type configFile struct {
	Backend   string             `yaml:"backend"`
	DataDir   string             `yaml:"data_dir,omitempty"`
	LogLevel  string             `yaml:"log_level"`
	LogFormat string             `yaml:"log_format"`
	Schema    types.SchemaConfig `yaml:"schema"`
}

// settings are the decoded configuration values.
type settings struct {
	Backend   string
	DataDir   string
	LogLevel  string
	LogFormat string
	Schema    types.SchemaConfig

	// Rules is nil when config.yaml carries no defaults list.
	Rules []defaults.Rule
}

// loadConfig reads config.yaml from configDir using Viper. It creates the
// config directory and a default config.yaml on first run.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := ensureConfigDir(configDir); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeyLogLevel, defaultLogLevel)
	v.SetDefault(cfgKeyLogFormat, logging.FormatText)
	if err := v.BindEnv(cfgKeyLogLevel, envLogLevel); err != nil {
		return nil, err
	}
	if err := v.BindEnv(cfgKeyLogFormat, envLogFormat); err != nil {
		return nil, err
	}
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// decodeSettings extracts settings from v. Schema names missing from the
// file keep their defaults.
func decodeSettings(v *viper.Viper) (settings, error) {
	s := settings{
		Backend:   v.GetString(cfgKeyBackend),
		DataDir:   v.GetString(cfgKeyDataDir),
		LogLevel:  v.GetString(cfgKeyLogLevel),
		LogFormat: v.GetString(cfgKeyLogFormat),
		Schema:    types.DefaultSchema(),
	}
	if v.IsSet(cfgKeySchema) {
		if v.IsSet(cfgKeySubtypes) {
			// Decoding into a non-nil slice would keep trailing defaults.
			s.Schema.Classes.DeviceSubtypes = nil
		}
		if err := v.UnmarshalKey(cfgKeySchema, &s.Schema); err != nil {
			return s, fmt.Errorf("decode schema: %w", err)
		}
	}
	if err := s.Schema.Validate(); err != nil {
		return s, fmt.Errorf("config schema: %w", err)
	}
	if v.IsSet(cfgKeyDefaults) {
		s.Rules = []defaults.Rule{}
		if err := v.UnmarshalKey(cfgKeyDefaults, &s.Rules); err != nil {
			return s, fmt.Errorf("decode defaults: %w", err)
		}
	}
	return s, nil
}

// ensureConfigDir creates the config directory if it does not exist.
func ensureConfigDir(configDir string) error {
	return os.MkdirAll(configDir, 0o755)
}

// ensureDefaultConfigFile writes a default config.yaml if the file does not
// exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	data, err := defaultConfigYAML()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// defaultConfigYAML renders the default configuration.
func defaultConfigYAML() ([]byte, error) {
	cfg := configFile{
		Backend:   types.BackendSQLite,
		LogLevel:  defaultLogLevel,
		LogFormat: logging.FormatText,
		Schema:    types.DefaultSchema(),
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&cfg); err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf.Bytes(), nil
}
