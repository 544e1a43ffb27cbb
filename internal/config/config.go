package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/healthrisk-cli/internal/dataset"
	"github.com/KaramelBytes/healthrisk-cli/internal/model"
	"github.com/KaramelBytes/healthrisk-cli/internal/utils"
)

// Global configuration structure.
type Global struct {
	// DataPath is the CSV used when a command gets no path. Empty means search the working directory.
	DataPath  string `mapstructure:"data_path" yaml:"data_path"`
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir"`

	// Training
	Seed          uint64  `mapstructure:"seed" yaml:"seed"`
	TestFraction  float64 `mapstructure:"test_fraction" yaml:"test_fraction"`
	KMeansInits   int     `mapstructure:"kmeans_inits" yaml:"kmeans_inits"`
	KMeansMaxIter int     `mapstructure:"kmeans_max_iter" yaml:"kmeans_max_iter"`

	// Normalization policies
	BoolPolicy     string `mapstructure:"bool_policy" yaml:"bool_policy"`
	CategoryPolicy string `mapstructure:"category_policy" yaml:"category_policy"`

	LogLevel   string `mapstructure:"log_level" yaml:"log_level"`
	ServerAddr string `mapstructure:"server_addr" yaml:"server_addr"`
}

// Keys lists every settable key, in display order.
var Keys = []string{
	"data_path", "models_dir", "seed", "test_fraction", "kmeans_inits", "kmeans_max_iter",
	"bool_policy", "category_policy", "log_level", "server_addr",
}

// DefaultPath is ~/.healthrisk/config.yaml.
func DefaultPath() (string, error) {
	dir, err := utils.AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.healthrisk/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := utils.SafeWriteFile(path, b); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Default returns the built-in configuration. Models go to ~/.healthrisk/models, or to
// .healthrisk/models under the working directory when the home directory is unknown.
func Default() *Global {
	d := model.DefaultOptions()
	modelsDir := filepath.Join(".healthrisk", "models")
	if dir, err := utils.AppDir(); err == nil {
		modelsDir = filepath.Join(dir, "models")
	}
	return &Global{
		ModelsDir:      modelsDir,
		Seed:           d.Seed,
		TestFraction:   d.TestFraction,
		KMeansInits:    d.Inits,
		KMeansMaxIter:  d.MaxIter,
		BoolPolicy:     string(dataset.BoolDefaultFalse),
		CategoryPolicy: string(dataset.CategoryNullThenDrop),
		LogLevel:       "info",
		ServerAddr:     ":8080",
	}
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. Flags are applied by the caller.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("HEALTHRISK")
	v.AutomaticEnv()

	// Defaults
	d := Default()
	v.SetDefault("data_path", "")
	v.SetDefault("models_dir", "")
	v.SetDefault("seed", d.Seed)
	v.SetDefault("test_fraction", d.TestFraction)
	v.SetDefault("kmeans_inits", d.KMeansInits)
	v.SetDefault("kmeans_max_iter", d.KMeansMaxIter)
	v.SetDefault("bool_policy", d.BoolPolicy)
	v.SetDefault("category_policy", d.CategoryPolicy)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("server_addr", d.ServerAddr)

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := utils.AppDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// Resolve models_dir default: ~/.healthrisk/models
	if c.ModelsDir == "" {
		dir, err := utils.AppDir()
		if err != nil {
			return nil, err
		}
		c.ModelsDir = filepath.Join(dir, "models")
	}
	md, err := utils.ExpandHome(c.ModelsDir)
	if err != nil {
		return nil, err
	}
	c.ModelsDir = md
	if c.DataPath != "" {
		if c.DataPath, err = utils.ExpandHome(c.DataPath); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// DatasetOptions validates and returns the normalization policies.
func (c *Global) DatasetOptions() (dataset.Options, error) {
	bp, err := dataset.ParseBoolPolicy(c.BoolPolicy)
	if err != nil {
		return dataset.Options{}, err
	}
	cp, err := dataset.ParseCategoryPolicy(c.CategoryPolicy)
	if err != nil {
		return dataset.Options{}, err
	}
	return dataset.Options{Bools: bp, Categories: cp}, nil
}

// TrainOptions returns validated training options.
func (c *Global) TrainOptions() (model.Options, error) {
	o := model.DefaultOptions()
	o.Seed = c.Seed
	o.TestFraction = c.TestFraction
	o.Inits = c.KMeansInits
	o.MaxIter = c.KMeansMaxIter
	if err := o.Validate(); err != nil {
		return model.Options{}, err
	}
	return o, nil
}

// Get returns the string form of one key.
func (c *Global) Get(key string) (string, error) {
	switch key {
	case "data_path":
		return c.DataPath, nil
	case "models_dir":
		return c.ModelsDir, nil
	case "seed":
		return fmt.Sprint(c.Seed), nil
	case "test_fraction":
		return fmt.Sprint(c.TestFraction), nil
	case "kmeans_inits":
		return fmt.Sprint(c.KMeansInits), nil
	case "kmeans_max_iter":
		return fmt.Sprint(c.KMeansMaxIter), nil
	case "bool_policy":
		return c.BoolPolicy, nil
	case "category_policy":
		return c.CategoryPolicy, nil
	case "log_level":
		return c.LogLevel, nil
	case "server_addr":
		return c.ServerAddr, nil
	}
	return "", fmt.Errorf("unknown key: %s", key)
}
