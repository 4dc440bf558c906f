package analyzer

import (
	"context"

	"github.com/sirupsen/logrus"

	"go-pricetag-viewer/internal/logger"
	"go-pricetag-viewer/internal/storage"
	"go-pricetag-viewer/pkg/models"
)

// RemoteAnalyzer delegates to the backend's POST /analyze-price-tag
type RemoteAnalyzer struct {
	client *storage.BackendClient
}

// NewRemoteAnalyzer creates an analyzer over the backend client
func NewRemoteAnalyzer(client *storage.BackendClient) *RemoteAnalyzer {
	return &RemoteAnalyzer{client: client}
}

// AnalyzeBox issues exactly one request; it is never retried
func (a *RemoteAnalyzer) AnalyzeBox(ctx context.Context, req models.AnalyzeRequest) (*models.AnalysisResult, error) {
	var result models.AnalysisResult
	if err := a.client.PostJSON(ctx, a.client.URL("analyze-price-tag"), req, &result); err != nil {
		return nil, err
	}

	// results are keyed by the box that was asked about
	if result.BoxID != req.BoxID {
		logger.WithFields(logrus.Fields{
			"image":       req.Image,
			"box_id":      req.BoxID,
			"returned_id": result.BoxID,
		}).Warn("Backend returned a different box id")
		result.BoxID = req.BoxID
	}
	if result.WhatWasRead == nil {
		result.WhatWasRead = []string{}
	}
	return &result, nil
}

func (a *RemoteAnalyzer) Close() error {
	return nil
}
