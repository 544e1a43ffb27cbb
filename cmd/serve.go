package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/healthrisk-cli/internal/cache"
	"github.com/KaramelBytes/healthrisk-cli/internal/dataset"
	"github.com/KaramelBytes/healthrisk-cli/internal/server"
)

var (
	serveAddr    string
	servePreload []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve training and prediction over HTTP",
	Long: `Serve starts an HTTP API. Datasets are uploaded as CSV bodies and trained once per distinct
content; predictions reference the returned dataset key.

  GET    /healthz
  GET    /api/v1/datasets
  POST   /api/v1/datasets?name=<file>        (CSV body)
  DELETE /api/v1/datasets/:key
  GET    /api/v1/datasets/:key/metrics
  POST   /api/v1/datasets/:key/predict       (JSON patient record)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			return err
		}
		dopt, err := c.DatasetOptions()
		if err != nil {
			return err
		}
		topt, err := c.TrainOptions()
		if err != nil {
			return err
		}
		addr := c.ServerAddr
		if cmd.Flags().Changed("addr") || addr == "" {
			addr = serveAddr
		}
		if !debug {
			gin.SetMode(gin.ReleaseMode)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := server.New(cache.New(logger), dopt, topt, logger)
		for _, path := range servePreload {
			raw, err := dataset.LoadFile(path)
			if err != nil {
				return err
			}
			key, b, err := srv.Train(ctx, raw)
			if err != nil {
				return fmt.Errorf("preload %s: %w", path, err)
			}
			logger.Info("dataset preloaded", zap.String("path", path), zap.String("key", key), zap.String("bundle", b.ID))
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Preloaded %s as dataset %s\n", path, key)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", addr)
		return srv.Run(ctx, addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address (overrides config)")
	serveCmd.Flags().StringSliceVar(&servePreload, "preload", nil, "CSV files to train at startup")
}
