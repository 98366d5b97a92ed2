/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

// Package config loads the skyforge user configuration: environment and
// credential settings, NOT the dimensional image spec (which is plain
// YAML consumed by the resolver).
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the global skyforge configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Work     WorkConfig     `mapstructure:"work"`
	Releases ReleasesConfig `mapstructure:"releases"`
	AWS      AWSConfig      `mapstructure:"aws"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WorkConfig holds the working area and spec locations.
type WorkConfig struct {
	Dir  string `mapstructure:"dir"`
	Spec string `mapstructure:"spec"`
}

// ReleasesConfig holds the version resolver endpoints.
type ReleasesConfig struct {
	// URL is the releases JSON document listing branches and releases.
	URL string `mapstructure:"url"`

	// Mirror is the distribution mirror base used for installer media.
	Mirror string `mapstructure:"mirror"`
}

// AWSConfig holds AWS credential and region settings.
type AWSConfig struct {
	Region          string `mapstructure:"region"`
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
}

// Load reads the global configuration, returning defaults when no config
// file exists.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	home, err := os.UserHomeDir()
	if err == nil {
		v.AddConfigPath(filepath.Join(home, ".skyforge"))
		v.AddConfigPath(filepath.Join(home, ".config", "skyforge"))
	}
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("SKYFORGE")
	v.AutomaticEnv()

	// config file is optional
	_ = v.ReadInConfig()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("SKYFORGE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "color")

	v.SetDefault("work.dir", "work")
	v.SetDefault("work.spec", "configs/images.yaml")

	v.SetDefault("releases.url", "https://alpinelinux.org/releases.json")
	v.SetDefault("releases.mirror", "https://dl-cdn.alpinelinux.org/alpine")

	// AWS SDK defaults apply when unset
	v.SetDefault("aws.region", "")
	v.SetDefault("aws.profile", "")
}
