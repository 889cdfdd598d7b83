package documents

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Epistemic-Technology/docextract/internal/config"
)

func TestS3SourceRetriesFailedClientBuild(t *testing.T) {
	src := NewS3Source(config.S3Config{Region: "us-east-1"})
	calls := 0
	src.load = func(ctx context.Context) (*manager.Downloader, error) {
		calls++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return manager.NewDownloader(s3.New(s3.Options{Region: "us-east-1"})), nil
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.client(cancelled)
	require.ErrorIs(t, err, context.Canceled)

	first, err := src.client(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := src.client(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 2, calls)
}

func TestS3SourceDownloadReportsBuildError(t *testing.T) {
	src := NewS3Source(config.S3Config{Region: "us-east-1"})
	src.load = func(context.Context) (*manager.Downloader, error) {
		return nil, errors.New("load aws config: no region")
	}

	n, err := src.Download(context.Background(), "papers", "report.txt", nil)
	assert.Zero(t, n)
	assert.ErrorContains(t, err, "load aws config")
}
