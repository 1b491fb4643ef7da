package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Settings holds process-level options for the km binary. They come from
// command-line flags, KM_* environment variables and built-in defaults, in
// that order of precedence. The node tree itself lives in the file named by
// ConfigPath.
type Settings struct {
	ConfigPath string `mapstructure:"config"`
	LogFile    string `mapstructure:"log_file"`
	Verbosity  string `mapstructure:"verbosity"`
	Format     string `mapstructure:"format"`
	Addr       string `mapstructure:"addr"`
}

// Verbosity levels accepted by the --verbosity flag.
const (
	VerbositySilent  = "silent"
	VerbosityQuiet   = "quiet"
	VerbosityNormal  = "normal"
	VerbosityVerbose = "verbose"
	VerbosityDebug   = "debug"
)

// DefaultDir returns ~/.km, falling back to ./.km when the home directory
// cannot be determined.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".km"
	}
	return filepath.Join(home, ".km")
}

// DefaultConfigPath returns ~/.km/config.json.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDir(), "config.json")
}

// LoadSettings resolves Settings from v. Flags must already be bound to v
// under the mapstructure keys above.
func LoadSettings(v *viper.Viper) (*Settings, error) {
	v.SetEnvPrefix("KM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	bindSettingsEnvVars(v)
	setSettingsDefaults(v)

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	s.ConfigPath = ExpandPath(s.ConfigPath)
	s.LogFile = ExpandPath(s.LogFile)
	s.Verbosity = strings.ToLower(s.Verbosity)
	s.Format = strings.ToLower(s.Format)

	switch s.Verbosity {
	case VerbositySilent, VerbosityQuiet, VerbosityNormal, VerbosityVerbose, VerbosityDebug:
	default:
		return nil, fmt.Errorf("invalid verbosity '%s': must be one of silent, quiet, normal, verbose, debug", s.Verbosity)
	}
	return s, nil
}

func bindSettingsEnvVars(v *viper.Viper) {
	v.BindEnv("config")
	v.BindEnv("log_file")
	v.BindEnv("verbosity")
	v.BindEnv("format")
	v.BindEnv("addr")
}

func setSettingsDefaults(v *viper.Viper) {
	v.SetDefault("config", DefaultConfigPath())
	v.SetDefault("log_file", "")
	v.SetDefault("verbosity", VerbosityNormal)
	v.SetDefault("format", "human")
	v.SetDefault("addr", "127.0.0.1:9000")
}
