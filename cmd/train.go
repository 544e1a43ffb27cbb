package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/healthrisk-cli/internal/utils"
)

var (
	trainSeed   uint64
	trainNoSave bool
	trainJSON   bool
)

var trainCmd = &cobra.Command{
	Use:   "train [file]",
	Short: "Train the regression and clustering models on a dataset",
	Long: `Train normalizes the dataset, standardizes the features, fits a linear regression on
the risk level (80/20 split) and a 4-cluster k-means model, and prints MSE, R², ARI and
inertia. The trained bundle is saved to models_dir unless --no-save is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var arg string
		if len(args) == 1 {
			arg = args[0]
		}
		path, err := resolveDataPath(arg)
		if err != nil {
			return err
		}
		tab, err := loadTable(path)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !trainJSON {
			printDrops(cmd.ErrOrStderr(), tab)
		}
		b, err := trainTable(tab, trainSeed, cmd.Flags().Changed("seed"))
		if err != nil {
			return err
		}

		var savedPath string
		if !trainNoSave {
			st, err := openStore()
			if err != nil {
				return err
			}
			if savedPath, err = st.Save(b); err != nil {
				return err
			}
		}

		if trainJSON {
			data, err := utils.PrettyJSON(struct {
				ID      string `json:"id"`
				Rows    int    `json:"rows"`
				Dropped int    `json:"dropped"`
				Metrics any    `json:"metrics"`
				Path    string `json:"path,omitempty"`
			}{b.ID, b.Rows, b.Dropped, b.Metrics, savedPath})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		fmt.Fprintf(out, "✓ Trained on %d rows from %s (seed %d)\n", b.Rows, tab.Name, b.Options.Seed)
		printMetrics(out, b)
		if savedPath != "" {
			fmt.Fprintf(out, "✓ Saved model %s to %s\n", b.ID, savedPath)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)
	trainCmd.Flags().Uint64Var(&trainSeed, "seed", 42, "random seed for the split and k-means (overrides config)")
	trainCmd.Flags().BoolVar(&trainNoSave, "no-save", false, "do not save the trained model")
	trainCmd.Flags().BoolVar(&trainJSON, "json", false, "print the result as JSON")
}
