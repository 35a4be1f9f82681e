// Package s3store implements the s3:// object store on aws-sdk-go-v2. Without
// static keys the default credential chain is used; a custom endpoint with
// path-style addressing serves MinIO and other S3-compatible stores.
package s3store

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"dwh/internal/datasource"
)

// API is the subset of *s3.Client the store uses.
type API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store serves objects from one bucket.
type Store struct {
	client API
	bucket string
}

var _ datasource.Store = (*Store)(nil)

// New wraps an existing client.
func New(client API, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// NewClient builds an S3 client from opts.
func NewClient(ctx context.Context, opts datasource.Options) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.S3.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.S3.AccessKeyID, opts.S3.SecretAccessKey, opts.S3.SessionToken)))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load AWS config: %w", err)
	}
	if cfg.Region == "" {
		// Custom endpoints ignore the region but the SDK still requires one.
		cfg.Region = "us-east-1"
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if ep := opts.S3.Endpoint; ep != "" {
			if !strings.Contains(ep, "://") {
				ep = "https://" + ep
			}
			o.BaseEndpoint = aws.String(ep)
		}
		o.UsePathStyle = opts.S3.UsePathStyle
	}), nil
}

// List pages through ListObjectsV2 for prefix. Directory markers are skipped.
func (s *Store) List(ctx context.Context, prefix string) ([]datasource.Object, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	var out []datasource.Object
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3: list s3://%s/%s: %w", s.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			out = append(out, datasource.Object{Key: key, Size: aws.ToInt64(obj.Size)})
		}
	}
	return out, nil
}

// Open streams the object body. The caller closes it.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	res, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3: get s3://%s/%s: %w", s.bucket, key, err)
	}
	return res.Body, nil
}

// newClient is a test hook.
var newClient = func(ctx context.Context, opts datasource.Options) (API, error) {
	return NewClient(ctx, opts)
}

func init() {
	datasource.Register("s3", func(ctx context.Context, loc datasource.Location, opts datasource.Options) (datasource.Store, error) {
		client, err := newClient(ctx, opts)
		if err != nil {
			return nil, err
		}
		return New(client, loc.Bucket), nil
	})
}
