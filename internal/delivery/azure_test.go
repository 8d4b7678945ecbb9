package delivery

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/lightbooth/boothflow/internal/faults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The destination is built by hand so the size ceiling is testable without
// talking to a storage account; a nil client guarantees no SDK call happens.
func testAzureDestination() *AzureBlobDestination {
	return &AzureBlobDestination{
		container:         "booth-results",
		singleUploadLimit: 10,
		maxUploadSize:     20,
		chunkSize:         5,
	}
}

func TestAzureOversizedPayloadRejectedBeforeUpload(t *testing.T) {
	req := &UploadRequest{
		JobID:     "job-1",
		FileName:  "job-1.mp4",
		SizeBytes: 21,
		Payload: func() (io.ReadCloser, int64, error) {
			t.Fatal("oversized payloads must never be opened")
			return nil, 0, nil
		},
	}

	_, err := testAzureDestination().Upload(context.Background(), req)
	require.Error(t, err)

	var valErr *faults.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, faults.CodeFileSizeExceeded, valErr.Code)
}

func TestAzureUnderstatedSizeStillRejected(t *testing.T) {
	data := bytes.Repeat([]byte("d"), 25)
	req := &UploadRequest{
		JobID:     "job-1",
		FileName:  "job-1.mp4",
		SizeBytes: 5,
		Payload: func() (io.ReadCloser, int64, error) {
			return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
		},
	}

	_, err := testAzureDestination().Upload(context.Background(), req)
	require.Error(t, err)

	var valErr *faults.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, faults.CodeFileSizeExceeded, valErr.Code)
	assert.False(t, faults.IsRetryable(err))
}
