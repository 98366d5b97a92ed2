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

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cowdogmoo/skyforge/clouds"
	"github.com/cowdogmoo/skyforge/config"
	"github.com/cowdogmoo/skyforge/image"
	"github.com/cowdogmoo/skyforge/logging"
	"github.com/cowdogmoo/skyforge/release"
	"github.com/cowdogmoo/skyforge/resolver"
)

var (
	cfgFile string

	// cfg is the merged global configuration, populated by initConfig.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "skyforge",
	Short: "Skyforge - multi-cloud OS image pipeline",
	Long: `Skyforge resolves a dimensional image configuration into one config per
build-matrix cell and walks each cell through its build, upload, import,
publish and release lifecycle across cloud providers.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default is $HOME/.skyforge/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text, json, color)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Quiet mode - only show errors")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose mode - show debug output")

	rootCmd.AddCommand(configsCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(releasesCmd)
	rootCmd.AddCommand(versionCmd)
}

// initConfig merges configuration with the precedence
// flags > environment > config file > defaults, then initializes logging.
func initConfig(cmd *cobra.Command, args []string) error {
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFromPath(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		logging.Warn("failed to load config, using defaults: %v", err)
		cfg = &config.Config{}
	}

	v := viper.New()
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)

	v.SetEnvPrefix("SKYFORGE")
	v.AutomaticEnv()

	if err := v.BindPFlag("log.level", cmd.Root().PersistentFlags().Lookup("log-level")); err != nil {
		return fmt.Errorf("failed to bind log-level flag: %w", err)
	}
	if err := v.BindPFlag("log.format", cmd.Root().PersistentFlags().Lookup("log-format")); err != nil {
		return fmt.Errorf("failed to bind log-format flag: %w", err)
	}
	bindCommandFlags(v, cmd)

	logLevel := v.GetString("log.level")
	logFormat := v.GetString("log.format")
	quiet, _ := cmd.Flags().GetBool("quiet")
	verbose, _ := cmd.Flags().GetBool("verbose")

	logging.Initialize(logLevel, logFormat, quiet, verbose)

	cfg.Log.Level = logLevel
	cfg.Log.Format = logFormat

	return nil
}

// bindCommandFlags binds the command's flags to Viper so every flag
// follows the same precedence chain.
func bindCommandFlags(v *viper.Viper, cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			logging.Warn("failed to bind flag %s to viper: %v", f.Name, err)
		}
	})
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// cloudRegistry builds the adapter set from the configured credentials.
func cloudRegistry() image.Registry {
	return clouds.DefaultRegistry(awsClientConfig(), logging.Default())
}

func awsClientConfig() clouds.ClientConfig {
	return clouds.ClientConfig{
		Region:          cfg.AWS.Region,
		Profile:         cfg.AWS.Profile,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		SessionToken:    cfg.AWS.SessionToken,
	}
}

// newManager creates the config manager over the configured work dir.
func newManager() *image.Manager {
	return image.NewManager(
		filepath.Join(cfg.Work.Dir, "images.yaml"),
		image.WithManagerLogger(logging.Default()),
		image.WithManagerClouds(cloudRegistry()),
		image.WithManagerWorkDir(cfg.Work.Dir),
	)
}

// loadOrResolve restores the persisted configuration set, resolving the
// dimensional spec on first run.
func loadOrResolve(rebuild bool) (*image.Manager, error) {
	mgr := newManager()

	if mgr.Resolved() && !rebuild {
		if err := mgr.Load(); err != nil {
			return nil, err
		}
		return mgr, nil
	}

	spec, err := resolver.LoadSpec(cfg.Work.Spec)
	if err != nil {
		return nil, err
	}

	versions := release.NewHTTPResolver(cfg.Releases.Mirror, cfg.Releases.URL)
	if err := mgr.Resolve(spec, versions); err != nil {
		return nil, err
	}
	return mgr, nil
}
