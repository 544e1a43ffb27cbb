package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/healthrisk-cli/internal/analysis"
)

var (
	descOutputPath string
	descSampleRows int
	descNoCorr     bool
	descOutlierThr float64
	descWithModel  bool
)

var describeCmd = &cobra.Command{
	Use:   "describe [file]",
	Short: "Summarize a health-risk CSV after normalization",
	Long: `Describe loads the dataset, applies the normalization policies and prints per-column
statistics, the risk level distribution, per-level feature means and correlations.
With --with-model it also trains and appends metrics and a risk-by-cluster table.`,
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
		opt := analysis.DefaultOptions()
		if descSampleRows > 0 {
			opt.SampleRows = descSampleRows
		}
		opt.Correlations = !descNoCorr
		if cmd.Flags().Changed("outlier-threshold") {
			opt.OutlierThreshold = descOutlierThr
		}
		rep := analysis.Summarize(tab, opt)
		if descWithModel {
			b, err := trainTable(tab, 0, false)
			if err != nil {
				return err
			}
			rep.AttachModel(b)
		}
		md := rep.Markdown()

		if descOutputPath != "" {
			if err := os.WriteFile(descOutputPath, []byte(md), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote summary to %s\n", descOutputPath)
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), md)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().StringVarP(&descOutputPath, "output", "o", "", "write markdown summary to file instead of stdout")
	describeCmd.Flags().IntVar(&descSampleRows, "sample-rows", 5, "number of sample rows to include")
	describeCmd.Flags().BoolVar(&descNoCorr, "no-corr", false, "skip the correlation section")
	describeCmd.Flags().Float64Var(&descOutlierThr, "outlier-threshold", 3.5, "robust z threshold for outlier counts (0 disables)")
	describeCmd.Flags().BoolVar(&descWithModel, "with-model", false, "train and include metrics and the risk-by-cluster table")
}
