package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/healthrisk-cli/internal/config"
	"github.com/KaramelBytes/healthrisk-cli/internal/dataset"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set healthrisk configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			return err
		}
		for _, k := range cfgpkg.Keys {
			v, _ := c.Get(k)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", k, v)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		// Reload from disk so flag overrides are not persisted.
		c, err := cfgpkg.Load(cfgFile)
		if err != nil {
			return err
		}
		switch key {
		case "data_path":
			c.DataPath = val
		case "models_dir":
			c.ModelsDir = val
		case "seed":
			u, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid uint for seed: %w", err)
			}
			c.Seed = u
		case "test_fraction":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil || f <= 0 || f >= 1 {
				return fmt.Errorf("invalid test_fraction: %v (use a value in (0,1))", val)
			}
			c.TestFraction = f
		case "kmeans_inits":
			i, err := strconv.Atoi(val)
			if err != nil || i < 1 {
				return fmt.Errorf("invalid int for kmeans_inits: %v", val)
			}
			c.KMeansInits = i
		case "kmeans_max_iter":
			i, err := strconv.Atoi(val)
			if err != nil || i < 1 {
				return fmt.Errorf("invalid int for kmeans_max_iter: %v", val)
			}
			c.KMeansMaxIter = i
		case "bool_policy":
			p, err := dataset.ParseBoolPolicy(val)
			if err != nil {
				return err
			}
			c.BoolPolicy = string(p)
		case "category_policy":
			p, err := dataset.ParseCategoryPolicy(val)
			if err != nil {
				return err
			}
			c.CategoryPolicy = string(p)
		case "log_level":
			if _, err := newLogger(val, false); err != nil {
				return err
			}
			c.LogLevel = val
		case "server_addr":
			c.ServerAddr = val
		default:
			return fmt.Errorf("unknown key: %s", key)
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		cfg = c
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
