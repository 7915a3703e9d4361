// Package azureblob implements lokadcloud.BlobGateway over Azure Blob
// Storage.
package azureblob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	lokadcloud "github.com/ischyrus/lokad-cloud-storage"
)

// Config controls connectivity to Azure Blob Storage.
type Config struct {
	Account    string
	AccountKey string
	Endpoint   string
	SASToken   string
}

// Store implements lokadcloud.BlobGateway backed by Azure Blob Storage.
type Store struct {
	client *azblob.Client
}

// New constructs a Store using cfg.
func New(cfg Config) (*Store, error) {
	if cfg.Account == "" {
		return nil, fmt.Errorf("azureblob: account is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.Account)
	}

	var (
		client *azblob.Client
		err    error
	)
	if cfg.SASToken != "" {
		endpointWithSAS, serr := appendSASToken(endpoint, cfg.SASToken)
		if serr != nil {
			return nil, serr
		}
		client, err = azblob.NewClientWithNoCredential(endpointWithSAS, nil)
	} else {
		if cfg.AccountKey == "" {
			return nil, fmt.Errorf("azureblob: account key or SAS token required")
		}
		cred, credErr := azblob.NewSharedKeyCredential(cfg.Account, cfg.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("azureblob: build credentials: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("azureblob: create client: %w", err)
	}
	return &Store{client: client}, nil
}

func appendSASToken(endpoint, sas string) (string, error) {
	sas = strings.TrimPrefix(sas, "?")
	if strings.Contains(endpoint, "?") {
		return endpoint + "&" + sas, nil
	}
	return endpoint + "?" + sas, nil
}

// CreateContainer creates container. Creating an already-existing container
// is not an error.
func (s *Store) CreateContainer(ctx context.Context, container string) error {
	_, err := s.client.CreateContainer(ctx, container, nil)
	if err != nil && !isContainerExists(err) {
		return fmt.Errorf("azureblob: create container: %w", err)
	}
	return nil
}

// PutBlob uploads body under container/name.
func (s *Store) PutBlob(ctx context.Context, container, name string, body []byte) error {
	_, err := s.client.UploadBuffer(ctx, container, name, body, nil)
	if err != nil {
		if isNotFound(err) {
			return lokadcloud.ErrContainerNotFound
		}
		return fmt.Errorf("azureblob: upload blob: %w", err)
	}
	return nil
}

// GetBlob downloads the blob at container/name.
func (s *Store) GetBlob(ctx context.Context, container, name string) ([]byte, bool, error) {
	resp, err := s.client.DownloadStream(ctx, container, name, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("azureblob: download blob: %w", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, false, fmt.Errorf("azureblob: read blob: %w", err)
	}
	return buf.Bytes(), true, nil
}

// DeleteBlob removes the blob at container/name. Absence is not an error.
func (s *Store) DeleteBlob(ctx context.Context, container, name string) error {
	_, err := s.client.DeleteBlob(ctx, container, name, nil)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("azureblob: delete blob: %w", err)
	}
	return nil
}

func isContainerExists(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusConflict && strings.EqualFold(respErr.ErrorCode, "ContainerAlreadyExists")
	}
	return false
}

// isNotFound checks the SDK error's status code explicitly rather than
// trusting absence of properties on a response.
func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusNotFound
	}
	return false
}
