package storage

import (
	"context"
	"fmt"
	"image"
	"io"
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	apperrors "go-pricetag-viewer/internal/errors"
)

// AzureImageStore pages through the images of one blob container
type AzureImageStore struct {
	client    *azblob.Client
	container string
}

// NewAzureImageStore authenticates with a shared key
func NewAzureImageStore(accountName, accountKey, container string) (*AzureImageStore, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid Azure storage credentials", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create Azure client", err)
	}

	return &AzureImageStore{client: client, container: container}, nil
}

// List returns image blob names sorted by name
func (s *AzureImageStore) List(ctx context.Context) ([]string, error) {
	names := []string{}
	pager := s.client.NewListBlobsFlatPager(s.container, nil)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, apperrors.NewFetchError("failed to list container "+s.container, err)
		}
		for _, item := range resp.Segment.BlobItems {
			if item.Name != nil && IsImageFile(*item.Name) {
				names = append(names, *item.Name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Open downloads and decodes one blob
func (s *AzureImageStore) Open(ctx context.Context, filename string) (image.Image, error) {
	body, err := s.ReadRaw(ctx, filename)
	if err != nil {
		return nil, err
	}
	return DecodeBytes(body)
}

// ReadRaw downloads one blob without decoding it
func (s *AzureImageStore) ReadRaw(ctx context.Context, filename string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, filename, nil)
	if err != nil {
		return nil, apperrors.NewFetchError("download failed for "+filename, err)
	}

	retryReader := resp.Body
	defer retryReader.Close()

	body, err := io.ReadAll(io.LimitReader(retryReader, maxBodySize))
	if err != nil {
		return nil, apperrors.NewFetchError("failed to read blob "+filename, err)
	}
	return body, nil
}
