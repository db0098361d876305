// Package s3 implements the "s3" backend with aws-sdk-go-v2.
package s3

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
	"gitlab.com/tozd/go/errors"

	"github.com/Chapsvision-dev/ferry/internal/operator"
)

const (
	Kind = "s3"

	defaultRegion = "us-east-1"
	partSize      = 8 * 1024 * 1024
)

// API is the subset of the S3 client the operator uses.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	manager.UploadAPIClient
}

func init() {
	operator.Register(Kind, func(ctx context.Context, opts operator.Options) (operator.Operator, error) {
		return New(ctx, opts)
	})
}

// Operator reads and writes objects in one bucket under an optional root prefix.
type Operator struct {
	client API
	bucket string
	root   string
}

// New builds an S3 client from profile options. Static credentials are used
// when access_key_id is set, otherwise the default AWS credential chain.
// No request is sent.
func New(ctx context.Context, opts operator.Options) (*Operator, error) {
	bucket, err := opts.Require("bucket")
	if err != nil {
		return nil, err
	}
	// custom endpoints (minio, ceph, localstack) default to path-style
	// addressing; force_path_style decides when it is set
	endpoint := opts.Get("endpoint", "")
	pathStyle, err := opts.Bool("force_path_style", endpoint != "")
	if err != nil {
		return nil, err
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Get("region", defaultRegion)),
	}
	if id := opts.Get("access_key_id", ""); id != "" {
		secret, err := opts.Require("secret_access_key")
		if err != nil {
			return nil, err
		}
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(id, secret, opts.Get("session_token", "")),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Errorf("s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
	})

	return NewWithClient(client, bucket, opts.Get("root", "")), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client API, bucket, root string) *Operator {
	return &Operator{client: client, bucket: bucket, root: root}
}

func (o *Operator) Kind() string { return Kind }

// Reader issues a GetObject and streams its body.
func (o *Operator) Reader(ctx context.Context, path string) (io.ReadCloser, error) {
	key := operator.JoinKey(o.root, path)
	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, translateError(o.bucket, key, err)
	}
	log.Debug().Str("action", "s3_get").Str("bucket", o.bucket).Str("key", key).
		Int64("content_length", aws.ToInt64(out.ContentLength)).Msg("object opened")
	return out.Body, nil
}

// Writer streams into a manager.Uploader. Large objects become multipart
// uploads that are completed on Close and aborted on Abort.
func (o *Operator) Writer(ctx context.Context, path string) (operator.Writer, error) {
	key := operator.JoinKey(o.root, path)
	if key == "" {
		return nil, errors.Errorf("s3: empty object key")
	}
	uploader := manager.NewUploader(o.client, func(u *manager.Uploader) {
		u.PartSize = partSize
		u.LeavePartsOnError = false
	})
	return operator.NewPipeWriter(ctx, func(ctx context.Context, r io.Reader) error {
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(o.bucket),
			Key:    aws.String(key),
			Body:   r,
		})
		if err != nil {
			return errors.Errorf("s3: upload %s/%s: %w", o.bucket, key, err)
		}
		return nil
	}), nil
}

func translateError(bucket, key string, err error) error {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return errors.Errorf("s3: %s/%s: %w", bucket, key, operator.ErrNotExist)
	}
	return errors.Errorf("s3: get %s/%s: %w", bucket, key, err)
}
