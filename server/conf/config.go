package conf

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gobustub/logger"

	"gopkg.in/ini.v1"
)

var ConfigPath string

type CommandLineArgs struct {
	ConfigPath string
}

// Cfg holds the storage engine's tunables, loaded from an ini file's
// [storage] section with the defaults from NewCfg filling in anything the
// file omits (the `default` struct tags are not read).
type Cfg struct {
	Raw *ini.File

	PoolSize    int `default:"64" yaml:"pool_size" json:"pool_size,omitempty"`
	ReplacerK   int `default:"2" yaml:"replacer_k" json:"replacer_k,omitempty"`

	LeafMaxSize     int `default:"254" yaml:"leaf_max_size" json:"leaf_max_size,omitempty"`
	InternalMaxSize int `default:"254" yaml:"internal_max_size" json:"internal_max_size,omitempty"`

	IsolationLevel string `default:"repeatable_read" yaml:"isolation_level" json:"isolation_level,omitempty"`

	CycleDetectionInterval         string `default:"50ms" yaml:"cycle_detection_interval" json:"cycle_detection_interval,omitempty"`
	CycleDetectionIntervalDuration time.Duration

	LogLevel string `default:"info" yaml:"log_level" json:"log_level,omitempty"`
}

// NewCfg returns a Cfg populated with the struct's defaults, equivalent
// to what Load produces when the ini file is absent or empty.
func NewCfg() *Cfg {
	return &Cfg{
		Raw:                    ini.Empty(),
		PoolSize:               64,
		ReplacerK:              2,
		LeafMaxSize:            254,
		InternalMaxSize:        254,
		IsolationLevel:         "repeatable_read",
		CycleDetectionInterval: "50ms",
		LogLevel:               "info",
	}
}

// Load reads the ini file named by args (or conf/my.ini) and populates
// cfg's [storage] settings, falling back to defaults for anything
// unset or for a missing file.
func (cfg *Cfg) Load(args *CommandLineArgs) *Cfg {
	setHomePath(args)
	iniFile, err := cfg.loadConfiguration(args)
	if err != nil {
		logger.Debugf("failed to load configuration file: %v\n", err)
		os.Exit(1)
	}
	cfg.Raw = iniFile

	cfg.parseStorageCfg(cfg.Raw.Section("storage"))
	return cfg
}

func setHomePath(args *CommandLineArgs) {
	if args.ConfigPath != "" {
		ConfigPath = args.ConfigPath
		return
	}
	ConfigPath, _ = filepath.Abs(".")
}

func (cfg *Cfg) loadConfiguration(args *CommandLineArgs) (*ini.File, error) {
	configFile := "conf/my.ini"
	if args.ConfigPath != "" {
		configFile = args.ConfigPath
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		logger.Debugf("configuration file not found: %s, using defaults\n", configFile)
		return ini.Empty(), nil
	}

	parsedFile, err := ini.Load(configFile)
	if err != nil {
		logger.Debugf("failed to parse configuration file: %v, using defaults\n", err)
		return ini.Empty(), nil
	}

	logger.Debugf("loaded configuration file: %s\n", configFile)
	return parsedFile, nil
}

func valueAsString(section *ini.Section, keyName string, defaultValue string) string {
	if section == nil {
		return defaultValue
	}
	value := section.Key(keyName).MustString(defaultValue)
	if value == "" {
		return defaultValue
	}
	return value
}

func (cfg *Cfg) parseStorageCfg(section *ini.Section) *Cfg {
	defaults := NewCfg()
	if section == nil {
		*cfg = *defaults
		return cfg
	}

	cfg.PoolSize = section.Key("pool_size").MustInt(defaults.PoolSize)
	cfg.ReplacerK = section.Key("replacer_k").MustInt(defaults.ReplacerK)
	cfg.LeafMaxSize = section.Key("leaf_max_size").MustInt(defaults.LeafMaxSize)
	cfg.InternalMaxSize = section.Key("internal_max_size").MustInt(defaults.InternalMaxSize)

	cfg.IsolationLevel = strings.ToLower(valueAsString(section, "isolation_level", defaults.IsolationLevel))
	validLevels := []string{"read_uncommitted", "read_committed", "repeatable_read"}
	valid := false
	for _, level := range validLevels {
		if cfg.IsolationLevel == level {
			valid = true
			break
		}
	}
	if !valid {
		logger.Debugf("invalid isolation_level %q, falling back to repeatable_read\n", cfg.IsolationLevel)
		cfg.IsolationLevel = "repeatable_read"
	}

	cfg.CycleDetectionInterval = valueAsString(section, "cycle_detection_interval", defaults.CycleDetectionInterval)
	dur, err := time.ParseDuration(cfg.CycleDetectionInterval)
	if err != nil {
		logger.Errorf("invalid cycle_detection_interval %q: %v", cfg.CycleDetectionInterval, err)
		dur, _ = time.ParseDuration(defaults.CycleDetectionInterval)
	}
	cfg.CycleDetectionIntervalDuration = dur

	cfg.LogLevel = strings.ToLower(valueAsString(section, "log_level", defaults.LogLevel))

	return cfg
}

// GetString reads a "section.key" dotted path out of the raw ini file.
func (cfg *Cfg) GetString(key string) string {
	parts := strings.Split(key, ".")
	if len(parts) < 2 {
		return ""
	}
	section := cfg.Raw.Section(parts[0])
	return valueAsString(section, strings.Join(parts[1:], "."), "")
}

// GetInt reads a "section.key" dotted path out of the raw ini file.
func (cfg *Cfg) GetInt(key string) int {
	parts := strings.Split(key, ".")
	if len(parts) < 2 {
		return 0
	}
	section := cfg.Raw.Section(parts[0])
	if section == nil {
		return 0
	}
	return section.Key(strings.Join(parts[1:], ".")).MustInt(0)
}
