package cmd

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/healthrisk-cli/internal/analysis"
	"github.com/KaramelBytes/healthrisk-cli/internal/utils"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List, inspect or remove saved models",
	Example: `  healthrisk models list
  healthrisk models show 3f2a
  healthrisk models show 3f2a --json
  healthrisk models rm 3f2a`,
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved models, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		list, err := st.List()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "(no models)")
			return nil
		}
		for _, m := range list {
			r2 := "n/a"
			if !math.IsNaN(m.Metrics.R2) {
				r2 = fmt.Sprintf("%.3f", m.Metrics.R2)
			}
			fmt.Fprintf(out, "- %s  %s  %s  rows=%d dropped=%d r2=%s ari=%.3f\n",
				m.ID, m.CreatedAt, m.DatasetName, m.Rows, m.Dropped, r2, m.Metrics.ARI)
		}
		return nil
	},
}

var modelsShowJSON bool

var modelsShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a saved model's metrics and cluster table (default: latest)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id string
		if len(args) == 1 {
			id = args[0]
		}
		b, err := loadBundle(id)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if modelsShowJSON {
			data, err := utils.PrettyJSON(b)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		fmt.Fprintf(out, "Model %s\n", b.ID)
		fmt.Fprintf(out, "  Dataset: %s (hash %s)\n", b.DatasetName, b.DatasetHash)
		fmt.Fprintf(out, "  Created: %s\n", b.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "  Rows: %d used, %d dropped; seed %d\n", b.Rows, b.Dropped, b.Options.Seed)
		printMetrics(out, b)
		fmt.Fprintln(out)
		fmt.Fprint(out, analysis.Contingency(b).Markdown())
		return nil
	},
}

var modelsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a saved model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		if err := st.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed model %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsRmCmd)
	modelsShowCmd.Flags().BoolVar(&modelsShowJSON, "json", false, "print the full bundle as JSON")
}
