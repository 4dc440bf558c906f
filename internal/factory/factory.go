package factory

import (
	"fmt"

	"go-pricetag-viewer/internal/analyzer"
	"go-pricetag-viewer/internal/analyzer/tesseract"
	"go-pricetag-viewer/internal/config"
	"go-pricetag-viewer/internal/storage"
)

// AnalyzerType represents the per-box analysis backend
type AnalyzerType string

const (
	// RemoteAnalyzer posts each box to the backend's analyze endpoint
	RemoteAnalyzer AnalyzerType = config.AnalyzerRemote
	// OllamaAnalyzer crops locally and asks a vision model
	OllamaAnalyzer AnalyzerType = config.AnalyzerOllama
	// TesseractAnalyzer crops locally and runs OCR
	TesseractAnalyzer AnalyzerType = config.AnalyzerTesseract
)

// StorageType represents where images are listed and downloaded from
type StorageType string

const (
	// HTTPStorage reads images from the backend
	HTTPStorage StorageType = config.ImageSourceHTTP
	// AzureStorage reads images from a blob container
	AzureStorage StorageType = config.ImageSourceAzure
)

// AnalyzerFactory creates box analyzers
type AnalyzerFactory interface {
	CreateAnalyzer(analyzerType AnalyzerType, images storage.ImageStore) (analyzer.BoxAnalyzer, error)
}

// StorageFactory creates image stores
type StorageFactory interface {
	CreateStorage(storageType StorageType) (storage.ImageStore, error)
}

// analyzerFactory implements AnalyzerFactory
type analyzerFactory struct {
	cfg     *config.Config
	backend *storage.BackendClient
}

// NewAnalyzerFactory creates a new analyzer factory. backend is used for
// analysis calls, so its deadlines should come from the call context.
func NewAnalyzerFactory(cfg *config.Config, backend *storage.BackendClient) AnalyzerFactory {
	return &analyzerFactory{cfg: cfg, backend: backend}
}

// CreateAnalyzer creates an analyzer based on the specified type. Local
// analyzers crop from images opened through the given store.
func (f *analyzerFactory) CreateAnalyzer(analyzerType AnalyzerType, images storage.ImageStore) (analyzer.BoxAnalyzer, error) {
	switch analyzerType {
	case RemoteAnalyzer:
		return analyzer.NewRemoteAnalyzer(f.backend), nil
	case OllamaAnalyzer:
		opts := analyzer.VisionOptions(f.cfg.OllamaModel).WithCrops(f.cfg.CropsDir)
		reader, err := analyzer.NewOllamaReader(f.cfg.OllamaURL, opts)
		if err != nil {
			return nil, err
		}
		return f.local(images, reader, opts)
	case TesseractAnalyzer:
		opts := analyzer.OCROptions().WithLanguage(f.cfg.OCRLanguage).WithCrops(f.cfg.CropsDir)
		reader, err := tesseract.NewReader(opts)
		if err != nil {
			return nil, err
		}
		return f.local(images, reader, opts)
	default:
		return nil, fmt.Errorf("unsupported analyzer type: %s", analyzerType)
	}
}

func (f *analyzerFactory) local(images storage.ImageStore, reader analyzer.TagReader, opts analyzer.Options) (analyzer.BoxAnalyzer, error) {
	cache, err := analyzer.NewImageCache(images, f.cfg.ImageCacheSize)
	if err != nil {
		reader.Close()
		return nil, err
	}

	var crops *analyzer.CropWriter
	if opts.SaveCrops {
		crops, err = analyzer.NewCropWriter(opts.CropsDir, opts.CropURLPrefix)
		if err != nil {
			reader.Close()
			return nil, err
		}
	}
	return analyzer.NewLocalAnalyzer(cache, reader, crops), nil
}

// storageFactory implements StorageFactory
type storageFactory struct {
	cfg     *config.Config
	backend *storage.BackendClient
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config, backend *storage.BackendClient) StorageFactory {
	return &storageFactory{cfg: cfg, backend: backend}
}

// CreateStorage creates a storage implementation based on the specified type
func (f *storageFactory) CreateStorage(storageType StorageType) (storage.ImageStore, error) {
	switch storageType {
	case HTTPStorage:
		return storage.NewHTTPImageStore(f.backend), nil
	case AzureStorage:
		store, err := storage.NewAzureImageStore(f.cfg.AzureStorageAccount, f.cfg.AzureStorageKey, f.cfg.AzureContainer)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	AnalyzerFactory AnalyzerFactory
	StorageFactory  StorageFactory
}

// NewComponentFactory creates a new component factory. Image fetches use
// backend; analysis calls use analysisBackend.
func NewComponentFactory(cfg *config.Config, backend, analysisBackend *storage.BackendClient) *ComponentFactory {
	return &ComponentFactory{
		AnalyzerFactory: NewAnalyzerFactory(cfg, analysisBackend),
		StorageFactory:  NewStorageFactory(cfg, backend),
	}
}
