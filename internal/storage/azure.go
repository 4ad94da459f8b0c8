package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	azcontainer "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"talk2data/internal/domain"
)

var _ domain.SchemaStore = (*AzureStore)(nil)

// AzureConfig configures an Azure Blob Storage container for schemas.
type AzureConfig struct {
	AccountName string
	AccountKey  string
	Container   string
	ServiceURL  string // defaults to https://{account}.blob.core.windows.net
	Prefix      string
}

// AzureStore keeps schema documents in an Azure Blob Storage container.
type AzureStore struct {
	container *azcontainer.Client
	prefix    string
}

// NewAzureStore creates a store authenticated with a shared account key.
func NewAzureStore(cfg AzureConfig) (*AzureStore, error) {
	if cfg.AccountName == "" || cfg.AccountKey == "" {
		return nil, fmt.Errorf("azure account name and key are required")
	}
	if cfg.Container == "" {
		return nil, fmt.Errorf("azure container is required")
	}
	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}
	serviceURL := cfg.ServiceURL
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &AzureStore{
		container: client.ServiceClient().NewContainerClient(cfg.Container),
		prefix:    prefix,
	}, nil
}

// Put uploads the raw document as a block blob.
func (s *AzureStore) Put(ctx context.Context, user, name string, raw []byte) error {
	if err := validateKey(user, name); err != nil {
		return err
	}
	bb := s.container.NewBlockBlobClient(objectKey(s.prefix, user, name))
	_, err := bb.UploadBuffer(ctx, raw, &blockblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr("application/json")},
	})
	if err != nil {
		return wrapOp("put", user, name, err)
	}
	return nil
}

// Get downloads the raw document.
func (s *AzureStore) Get(ctx context.Context, user, name string) ([]byte, error) {
	if err := validateKey(user, name); err != nil {
		return nil, err
	}
	resp, err := s.container.NewBlobClient(objectKey(s.prefix, user, name)).DownloadStream(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, notFound(user, name)
		}
		return nil, wrapOp("get", user, name, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapOp("read", user, name, err)
	}
	return raw, nil
}

// List returns the user's schema names.
func (s *AzureStore) List(ctx context.Context, user string) ([]string, error) {
	if err := validateKey(user, "x"); err != nil {
		return nil, err
	}
	listPrefix := userPrefix(s.prefix, user)
	pager := s.container.NewListBlobsFlatPager(&azcontainer.ListBlobsFlatOptions{
		Prefix: to.Ptr(listPrefix),
	})
	var keys []string
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list schemas for %s: %w", user, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				keys = append(keys, *item.Name)
			}
		}
	}
	return schemaNames(keys, listPrefix), nil
}

// Delete removes the document.
func (s *AzureStore) Delete(ctx context.Context, user, name string) error {
	if err := validateKey(user, name); err != nil {
		return err
	}
	_, err := s.container.NewBlobClient(objectKey(s.prefix, user, name)).Delete(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return notFound(user, name)
		}
		return wrapOp("delete", user, name, err)
	}
	return nil
}
