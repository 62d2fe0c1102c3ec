package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"songbook/generator"
)

const (
	configName      = ".songbook"
	envPrefix       = "SONGBOOK"
	defaultSiteName = "Songbook"
	defaultHeadroom = 100
)

type CategoryConfig struct {
	Name        string `mapstructure:"name"`
	Prefix      string `mapstructure:"prefix"`
	Dir         string `mapstructure:"dir"`
	Display     string `mapstructure:"display"`
	ChorusLabel string `mapstructure:"chorus_label"`
}

type Config struct {
	SiteName   string           `mapstructure:"site_name"`
	Headroom   int              `mapstructure:"headroom"`
	Categories []CategoryConfig `mapstructure:"categories"`
}

// LoadConfig reads .songbook.json from configDir, or configJSON when it is
// not empty. SONGBOOK_SITE_NAME and SONGBOOK_HEADROOM override either.
func LoadConfig(configDir string, configJSON string) (*Config, error) {
	v := viper.New()
	v.SetDefault("site_name", defaultSiteName)
	v.SetDefault("headroom", defaultHeadroom)
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if configJSON != "" {
		if err := v.ReadConfig(strings.NewReader(configJSON)); err != nil {
			return nil, fmt.Errorf("error parsing config JSON: %w", err)
		}
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(configDir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading %s.json: %w", configName, err)
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if config.Headroom < 0 {
		return nil, fmt.Errorf("headroom must not be negative, got %d", config.Headroom)
	}
	return config, nil
}

// BuildCategories merges the configured categories into the built-in table.
// A configured category with a built-in name replaces that entry.
func (c *Config) BuildCategories() (generator.Categories, error) {
	extra := make([]generator.Category, 0, len(c.Categories))
	for _, cc := range c.Categories {
		if strings.TrimSpace(cc.Name) == "" {
			return nil, fmt.Errorf("category without a name in config")
		}
		extra = append(extra, generator.NewCategory(cc.Name, cc.Prefix, cc.Dir, cc.Display, cc.ChorusLabel))
	}
	cats := generator.DefaultCategories().With(extra...)
	if err := cats.Validate(); err != nil {
		return nil, err
	}
	return cats, nil
}
