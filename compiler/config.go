package compiler

import (
	"os"

	"github.com/brimdata/ruleflow/pkg/logger"
	"gopkg.in/yaml.v3"
)

const (
	DefaultCacheSize = 128
	DefaultCurrency  = "usd"
)

type Config struct {
	// CacheSize is the number of compiled programs kept by
	// CompileCached.  Zero disables the cache.
	CacheSize int `yaml:"cache_size"`
	// ForProcedure compiles statements to emit their results to the
	// caller instead of outputting them.
	ForProcedure    bool          `yaml:"for_procedure"`
	DefaultCurrency string        `yaml:"default_currency"`
	Log             logger.Config `yaml:"log"`
}

func DefaultConfig() Config {
	return Config{
		CacheSize:       DefaultCacheSize,
		DefaultCurrency: DefaultCurrency,
		Log:             logger.Config{Path: "stderr"},
	}
}

// LoadConfig reads a YAML config from path.  Settings missing from the
// file keep their defaults.
func LoadConfig(path string) (Config, error) {
	conf := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return conf, err
	}
	defer f.Close()
	d := yaml.NewDecoder(f)
	d.KnownFields(true)
	if err := d.Decode(&conf); err != nil {
		return conf, err
	}
	if conf.DefaultCurrency == "" {
		conf.DefaultCurrency = DefaultCurrency
	}
	return conf, nil
}
