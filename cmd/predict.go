package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/healthrisk-cli/internal/dataset"
	"github.com/KaramelBytes/healthrisk-cli/internal/model"
	"github.com/KaramelBytes/healthrisk-cli/internal/utils"
)

var (
	predModelID string
	predData    string
	predJSON    bool
	predInput   = model.DefaultInput()
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict the risk level of one patient",
	Long: `Predict scores one patient with a trained model: the regression score, its rounding to a
risk level in 1..4, the nearest k-means cluster and that cluster's majority risk level.

The model is taken from --data (trained on the fly), --model (a saved id or unique prefix),
or the most recently saved model. With no saved model the default dataset is trained.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := predictionBundle()
		if err != nil {
			return err
		}
		c, err := currentConfig()
		if err != nil {
			return err
		}
		opt, err := c.DatasetOptions()
		if err != nil {
			return err
		}
		p, err := b.Predict(predInput.Raw(), opt)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if predJSON {
			data, err := utils.PrettyJSON(p)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		level, _ := dataset.RiskLevel.Label(p.RoundedScore)
		fmt.Fprintf(out, "Model: %s (%s)\n", b.ID, b.DatasetName)
		fmt.Fprintf(out, "Continuous score:     %.4f\n", p.ContinuousScore)
		fmt.Fprintf(out, "Predicted risk level: %d (%s)\n", p.RoundedScore, level)
		fmt.Fprintf(out, "Cluster:              %d (majority: %s)\n", p.ClusterID, p.ClusterLabelName)
		return nil
	},
}

func predictionBundle() (*model.Bundle, error) {
	if predData != "" {
		tab, err := loadTable(predData)
		if err != nil {
			return nil, err
		}
		return trainTable(tab, 0, false)
	}
	b, err := loadBundle(predModelID)
	if err == nil {
		return b, nil
	}
	if predModelID != "" || !isNotFound(err) {
		return nil, err
	}
	path, perr := resolveDataPath("")
	if perr != nil {
		return nil, fmt.Errorf("no saved model and no dataset: %w", perr)
	}
	logger.Sugar().Infof("no saved model, training on %s", path)
	tab, err := loadTable(path)
	if err != nil {
		return nil, err
	}
	return trainTable(tab, 0, false)
}

func init() {
	rootCmd.AddCommand(predictCmd)
	f := predictCmd.Flags()
	f.StringVarP(&predModelID, "model", "m", "", "saved model id or unique prefix (default: latest)")
	f.StringVar(&predData, "data", "", "train on this CSV instead of using a saved model")
	f.BoolVar(&predJSON, "json", false, "print the prediction as JSON")

	d := model.DefaultInput()
	f.IntVar(&predInput.RespiratoryRate, "resp", d.RespiratoryRate, "respiratory rate (breaths/min)")
	f.IntVar(&predInput.OxygenSaturation, "oxy", d.OxygenSaturation, "oxygen saturation (%)")
	f.BoolVar(&predInput.O2Scale, "o2-scale", d.O2Scale, "supplemental oxygen scale in use")
	f.IntVar(&predInput.SystolicBP, "sys", d.SystolicBP, "systolic blood pressure (mmHg)")
	f.IntVar(&predInput.HeartRate, "heart", d.HeartRate, "heart rate (bpm)")
	f.Float64Var(&predInput.Temperature, "temp", d.Temperature, "body temperature (°C)")
	f.StringVar(&predInput.Consciousness, "consciousness", d.Consciousness, "consciousness level: A|P|V|U|C")
	f.BoolVar(&predInput.OnOxygen, "on-oxygen", d.OnOxygen, "patient is on oxygen")
}
