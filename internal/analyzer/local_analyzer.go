package analyzer

import (
	"context"

	"github.com/sirupsen/logrus"

	apperrors "go-pricetag-viewer/internal/errors"
	"go-pricetag-viewer/internal/logger"
	"go-pricetag-viewer/pkg/models"
)

// LocalAnalyzer crops boxes in-process and hands them to a TagReader
type LocalAnalyzer struct {
	images *ImageCache
	reader TagReader
	crops  *CropWriter
}

// NewLocalAnalyzer creates an analyzer. crops may be nil to skip debug crops.
func NewLocalAnalyzer(images *ImageCache, reader TagReader, crops *CropWriter) *LocalAnalyzer {
	return &LocalAnalyzer{images: images, reader: reader, crops: crops}
}

// AnalyzeBox crops the box, optionally saves it, and reads the crop.
// A saved crop is announced as the first what_was_read entry.
func (a *LocalAnalyzer) AnalyzeBox(ctx context.Context, req models.AnalyzeRequest) (*models.AnalysisResult, error) {
	if req.Image == "" {
		return nil, apperrors.NewValidationError("image is required", nil)
	}

	img, err := a.images.Get(ctx, req.Image)
	if err != nil {
		return nil, err
	}

	crop, err := CropBox(img, req.Box)
	if err != nil {
		return nil, err
	}

	var debugPath string
	if a.crops != nil {
		debugPath, err = a.crops.Save(crop, req.Image, req.BoxID)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"image":  req.Image,
				"box_id": req.BoxID,
				"error":  err.Error(),
			}).Warn("Failed to save debug crop")
		}
	}

	result, err := a.reader.ReadTag(ctx, crop)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeAnalysis) {
			return nil, err
		}
		return nil, apperrors.NewAnalysisError("failed to read price tag", err)
	}

	result.BoxID = req.BoxID
	if result.WhatWasRead == nil {
		result.WhatWasRead = []string{}
	}
	if debugPath != "" {
		result.WhatWasRead = append([]string{models.DebugCropPrefix + debugPath}, result.WhatWasRead...)
	}
	return result, nil
}

// Close releases the reader
func (a *LocalAnalyzer) Close() error {
	return a.reader.Close()
}
