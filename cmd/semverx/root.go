package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anvil-platform/semverx/internal/catalog"
	"github.com/anvil-platform/semverx/internal/manifest"
)

// cli carries the configuration shared by every subcommand.
type cli struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:           "semverx",
		Short:         "SemVerX version, resolution and hot-swap tool",
		Long:          "semverx parses and compares SemVerX versions and dry-runs dependency resolution and hot swaps against a component manifest.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initConfig(cmd)
		},
	}
	root.PersistentFlags().String("config", "", "config file (default .semverx.yaml)")
	root.PersistentFlags().StringP("manifest", "m", "", "component manifest (YAML)")
	root.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	_ = c.v.BindPFlag("manifest", root.PersistentFlags().Lookup("manifest"))
	_ = c.v.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))

	root.AddCommand(
		c.parseCmd(),
		c.compareCmd(),
		c.satisfiesCmd(),
		c.canSwapCmd(),
		c.resolveCmd(),
		c.pathCmd(),
		c.swapCmd(),
		c.healthCmd(),
	)
	return root
}

func (c *cli) initConfig(cmd *cobra.Command) error {
	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		c.v.SetConfigFile(cfgFile)
	} else {
		c.v.SetConfigName(".semverx")
		c.v.SetConfigType("yaml")
		c.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			c.v.AddConfigPath(home)
		}
	}

	c.v.SetEnvPrefix("SEMVERX")
	c.v.AutomaticEnv()

	// A missing default config file is fine; flags and env cover everything.
	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// loadCatalog builds a catalog from the configured manifest.
func (c *cli) loadCatalog() (*catalog.Catalog, error) {
	path := c.v.GetString("manifest")
	if path == "" {
		return nil, fmt.Errorf("no manifest given (use --manifest or SEMVERX_MANIFEST)")
	}
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	cat := catalog.New()
	if err := cat.Import(m.Records()); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return cat, nil
}
