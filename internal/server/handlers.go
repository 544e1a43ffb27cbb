package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KaramelBytes/healthrisk-cli/internal/dataset"
	"github.com/KaramelBytes/healthrisk-cli/internal/model"
)

func (s *Server) registerRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/datasets", s.handleListDatasets)
		api.POST("/datasets", s.handleUploadDataset)
		api.DELETE("/datasets/:key", s.handleDeleteDataset)
		api.GET("/datasets/:key/metrics", s.handleMetrics)
		api.POST("/datasets/:key/predict", s.handlePredict)
	}
}

type datasetResponse struct {
	Key           string         `json:"key"`
	BundleID      string         `json:"bundle_id"`
	DatasetName   string         `json:"dataset_name"`
	Rows          int            `json:"rows"`
	Dropped       int            `json:"dropped"`
	Metrics       model.Metrics  `json:"metrics"`
	ClusterLabels map[int]string `json:"cluster_labels"`
}

func newDatasetResponse(key string, b *model.Bundle) datasetResponse {
	labels := make(map[int]string, model.NumClusters)
	for c := 0; c < len(b.Clusterer.Centroids); c++ {
		labels[c] = model.UnknownLabel
		if l, ok := b.ClusterLabels[c]; ok {
			if name, ok := dataset.RiskLevel.Label(l); ok {
				labels[c] = name
			}
		}
	}
	return datasetResponse{
		Key:           key,
		BundleID:      b.ID,
		DatasetName:   b.DatasetName,
		Rows:          b.Rows,
		Dropped:       b.Dropped,
		Metrics:       b.Metrics,
		ClusterLabels: labels,
	}
}

func (s *Server) handleListDatasets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"keys": s.cache.Keys()})
}

// handleUploadDataset trains on a CSV request body. Identical content returns the cached bundle.
func (s *Server) handleUploadDataset(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadBytes))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "read body: " + err.Error()})
		return
	}
	name := filepath.Base(c.DefaultQuery("name", "upload.csv"))
	raw, err := dataset.LoadBytes(name, body)
	if err != nil {
		handleError(c, err)
		return
	}
	_, cached := s.cache.Get(s.Key(raw))
	key, b, err := s.Train(c.Request.Context(), raw)
	if err != nil {
		s.log.Warn("training failed", zap.String("dataset", name), zap.Error(err))
		handleError(c, err)
		return
	}
	status := http.StatusCreated
	if cached {
		status = http.StatusOK
	}
	c.JSON(status, newDatasetResponse(key, b))
}

func (s *Server) handleDeleteDataset(c *gin.Context) {
	if !s.cache.Invalidate(c.Param("key")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown dataset key"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMetrics(c *gin.Context) {
	key := c.Param("key")
	b, ok := s.cache.Get(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown dataset key"})
		return
	}
	c.JSON(http.StatusOK, newDatasetResponse(key, b))
}

// handlePredict scores one record. Every feature field is required; values go through the
// same coercion as CSV cells, so "True", 1 and true are all accepted for the boolean flags.
func (s *Server) handlePredict(c *gin.Context) {
	b, ok := s.cache.Get(c.Param("key"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown dataset key"})
		return
	}
	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	raw, err := rawRecord(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	p, err := b.Predict(raw, s.dataOpt)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// rawRecord flattens a JSON object of scalars into raw cells. null becomes an empty cell.
func rawRecord(body map[string]json.RawMessage) (map[string]string, error) {
	raw := make(map[string]string, len(body))
	for k, v := range body {
		var cell any
		if err := json.Unmarshal(v, &cell); err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		switch x := cell.(type) {
		case nil:
			raw[k] = ""
		case string:
			raw[k] = x
		case bool:
			raw[k] = strconv.FormatBool(x)
		case float64:
			raw[k] = strings.TrimSpace(string(v))
		default:
			return nil, fmt.Errorf("field %s must be a number, string or boolean", k)
		}
	}
	return raw, nil
}

// handleError maps domain errors to HTTP responses.
func handleError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	var (
		missing    *dataset.MissingColumnsError
		parse      *dataset.ParseError
		invalid    *dataset.InvalidValueError
		degenerate *model.DegenerateDatasetError
	)
	switch {
	case errors.As(err, &missing), errors.As(err, &parse), errors.As(err, &invalid), errors.As(err, &degenerate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrNotTrained):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
