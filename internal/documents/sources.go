package documents

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Epistemic-Technology/zotero/zotero"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Epistemic-Technology/docextract/internal/config"
)

// AttachmentSource downloads a stored attachment by key.
type AttachmentSource interface {
	File(ctx context.Context, key string) ([]byte, error)
}

// ObjectSource downloads an object from a bucket into w.
type ObjectSource interface {
	Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error)
}

// NewZoteroSource returns an attachment source for a Zotero user library,
// or nil when credentials are not configured.
func NewZoteroSource(cfg config.ZoteroConfig) AttachmentSource {
	if cfg.APIKey == "" || cfg.LibraryID == "" {
		return nil
	}
	return zotero.NewClient(cfg.LibraryID, zotero.LibraryTypeUser, zotero.WithAPIKey(cfg.APIKey))
}

// S3Source downloads objects with the S3 transfer manager. The client is
// built on first use so configurations without S3 never touch AWS. A failed
// build is retried on the next download.
type S3Source struct {
	cfg  config.S3Config
	load func(ctx context.Context) (*manager.Downloader, error)

	mu         sync.Mutex
	downloader *manager.Downloader
}

// NewS3Source creates a lazily initialized S3 source.
func NewS3Source(cfg config.S3Config) *S3Source {
	s := &S3Source{cfg: cfg}
	s.load = s.newDownloader
	return s
}

func (s *S3Source) newDownloader(ctx context.Context) (*manager.Downloader, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(s.cfg.Region)}
	if s.cfg.AccessKey != "" && s.cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKey, s.cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return manager.NewDownloader(s3.NewFromConfig(awsCfg)), nil
}

func (s *S3Source) client(ctx context.Context) (*manager.Downloader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.downloader != nil {
		return s.downloader, nil
	}
	d, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.downloader = d
	return d, nil
}

// Download implements ObjectSource.
func (s *S3Source) Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	downloader, err := s.client(ctx)
	if err != nil {
		return 0, err
	}
	n, err := downloader.Download(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return n, fmt.Errorf("s3 download failed: %w", err)
	}
	return n, nil
}
