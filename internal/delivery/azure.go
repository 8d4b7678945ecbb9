package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/lightbooth/boothflow/internal/faults"
)

// AzureBlobDestination exports media to an Azure Blob container. Small
// payloads go up in one UploadBuffer call; payloads over the single-upload
// limit are staged as 8MB blocks and committed as a block list. The size
// ceiling matches the HTTP provider: oversized payloads are rejected before
// any network traffic.
type AzureBlobDestination struct {
	client    *azblob.Client
	container string
	prefix    string

	singleUploadLimit int64
	maxUploadSize     int64
	chunkSize         int64
}

// NewAzureBlobDestination wraps an azblob client targeting container. prefix
// is prepended to every blob name, may be empty.
func NewAzureBlobDestination(client *azblob.Client, container, prefix string) *AzureBlobDestination {
	return &AzureBlobDestination{
		client:            client,
		container:         container,
		prefix:            prefix,
		singleUploadLimit: DefaultSingleUploadLimit,
		maxUploadSize:     DefaultMaxUploadSize,
		chunkSize:         DefaultChunkSize,
	}
}

// NewAzureBlobDestinationFromConnectionString builds the destination from an
// Azure storage connection string.
func NewAzureBlobDestinationFromConnectionString(connStr, container, prefix string) (*AzureBlobDestination, error) {
	client, err := azblob.NewClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, fmt.Errorf("creating azure blob client: %w", err)
	}
	return NewAzureBlobDestination(client, container, prefix), nil
}

// NewAzureBlobDestinationFromAccountURL builds the destination against a
// storage account URL using the ambient Azure credential chain (environment,
// managed identity, az cli).
func NewAzureBlobDestinationFromAccountURL(accountURL, container, prefix string) (*AzureBlobDestination, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving azure credential: %w", err)
	}
	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating azure blob client: %w", err)
	}
	return NewAzureBlobDestination(client, container, prefix), nil
}

// Name returns the provider name used in export logs.
func (d *AzureBlobDestination) Name() string { return "azureblob" }

// Upload stores the payload as a blob, routing by size.
func (d *AzureBlobDestination) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	if req.SizeBytes > d.maxUploadSize {
		return nil, faults.Validation(faults.CodeFileSizeExceeded,
			"payload is %d bytes, destination limit is %d", req.SizeBytes, d.maxUploadSize)
	}

	body, size, err := req.Payload()
	if err != nil {
		return nil, fmt.Errorf("opening upload payload: %w", err)
	}
	defer body.Close() //nolint:errcheck

	// The declared size is caller input; the ceiling holds against the
	// actual payload size too.
	if size > d.maxUploadSize {
		return nil, faults.Validation(faults.CodeFileSizeExceeded,
			"payload is %d bytes, destination limit is %d", size, d.maxUploadSize)
	}

	blobName := path.Join(d.prefix, req.FileName)

	if size <= d.singleUploadLimit {
		err = d.uploadWhole(ctx, blobName, body)
	} else {
		err = d.uploadBlocks(ctx, blobName, body, size)
	}
	if err != nil {
		return nil, mapAzureError(err)
	}

	return &UploadResult{
		Path: path.Join(d.container, blobName),
		URL:  fmt.Sprintf("%s%s/%s", d.client.URL(), d.container, blobName),
	}, nil
}

func (d *AzureBlobDestination) uploadWhole(ctx context.Context, blobName string, body io.Reader) error {
	payload, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("reading upload payload: %w", err)
	}
	_, err = d.client.UploadBuffer(ctx, d.container, blobName, payload, nil)
	return err
}

func (d *AzureBlobDestination) uploadBlocks(ctx context.Context, blobName string, body io.Reader, size int64) error {
	blockBlob := d.client.ServiceClient().NewContainerClient(d.container).NewBlockBlobClient(blobName)

	var blockIDs []string
	chunk := make([]byte, d.chunkSize)
	var offset int64

	for offset < size {
		n, readErr := io.ReadFull(body, chunk)
		if readErr == io.ErrUnexpectedEOF || readErr == io.EOF {
			readErr = nil
		}
		if readErr != nil {
			return fmt.Errorf("reading block at offset %d: %w", offset, readErr)
		}
		if n == 0 {
			return fmt.Errorf("payload ended at %d bytes, expected %d", offset, size)
		}

		blockID := base64.StdEncoding.EncodeToString(fmt.Appendf(nil, "block-%08d", len(blockIDs)))
		if _, err := blockBlob.StageBlock(ctx, blockID, streaming.NopCloser(bytes.NewReader(chunk[:n])), nil); err != nil {
			return fmt.Errorf("staging block %d: %w", len(blockIDs), err)
		}

		blockIDs = append(blockIDs, blockID)
		offset += int64(n)
	}

	if _, err := blockBlob.CommitBlockList(ctx, blockIDs, nil); err != nil {
		return fmt.Errorf("committing %d blocks: %w", len(blockIDs), err)
	}
	return nil
}

// mapAzureError folds Azure SDK response errors onto the error taxonomy so
// the dispatcher's retry policy treats both providers uniformly.
func mapAzureError(err error) error {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return faults.Transient(faults.CodeTimeout, err, "azure upload timed out")
		}
		return err
	}

	switch {
	case respErr.StatusCode == http.StatusUnauthorized || respErr.StatusCode == http.StatusForbidden:
		return faults.Auth(faults.CodeAuthFailed, false, "azure rejected the credentials: %v", respErr.ErrorCode)
	case respErr.StatusCode == http.StatusTooManyRequests:
		return faults.Transient(faults.CodeRateLimited, err, "azure rate limited the upload")
	case respErr.StatusCode >= 500:
		return faults.Transient(faults.CodeUpstreamError, err, "azure returned %d", respErr.StatusCode)
	default:
		return faults.Validation(faults.CodeInvalidReference, "azure rejected the request with %d", respErr.StatusCode)
	}
}

var _ Destination = (*AzureBlobDestination)(nil)
