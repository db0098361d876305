// Package minio implements the "minio" backend for S3-compatible servers
// with minio-go.
package minio

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"gitlab.com/tozd/go/errors"

	"github.com/Chapsvision-dev/ferry/internal/operator"
)

const (
	Kind = "minio"

	partSize = 8 * 1024 * 1024
)

func init() {
	operator.Register(Kind, func(_ context.Context, opts operator.Options) (operator.Operator, error) {
		return New(opts)
	})
}

// Operator reads and writes objects in one bucket.
type Operator struct {
	client *minio.Client
	bucket string
	root   string
}

// New builds a minio client. The endpoint may be given as host:port or as a
// URL; a URL scheme decides TLS unless "secure" is set explicitly.
func New(opts operator.Options) (*Operator, error) {
	bucket, err := opts.Require("bucket")
	if err != nil {
		return nil, err
	}
	endpoint, err := opts.Require("endpoint")
	if err != nil {
		return nil, err
	}
	host, secure, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	secure, err = opts.Bool("secure", secure)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds: credentials.NewStaticV4(
			opts.Get("access_key_id", ""),
			opts.Get("secret_access_key", ""),
			opts.Get("session_token", ""),
		),
		Secure: secure,
		Region: opts.Get("region", ""),
	})
	if err != nil {
		return nil, errors.Errorf("minio: create client: %w", err)
	}
	return &Operator{client: client, bucket: bucket, root: opts.Get("root", "")}, nil
}

func splitEndpoint(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, true, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, errors.Errorf("minio: invalid endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "http":
		return u.Host, false, nil
	case "https":
		return u.Host, true, nil
	}
	return "", false, errors.Errorf("minio: unsupported endpoint scheme %q", u.Scheme)
}

func (o *Operator) Kind() string { return Kind }

// Reader opens the object. GetObject is lazy, so the object is stat'ed first
// to surface a missing key at open time.
func (o *Operator) Reader(ctx context.Context, path string) (io.ReadCloser, error) {
	key := operator.JoinKey(o.root, path)
	obj, err := o.client.GetObject(ctx, o.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateError(o.bucket, key, err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, translateError(o.bucket, key, err)
	}
	return obj, nil
}

// Writer streams into PutObject with an unknown size; minio-go switches to a
// multipart upload that is only completed when the stream ends cleanly.
func (o *Operator) Writer(ctx context.Context, path string) (operator.Writer, error) {
	key := operator.JoinKey(o.root, path)
	if key == "" {
		return nil, errors.New("minio: empty object key")
	}
	return operator.NewPipeWriter(ctx, func(ctx context.Context, r io.Reader) error {
		_, err := o.client.PutObject(ctx, o.bucket, key, r, -1, minio.PutObjectOptions{
			ContentType: "application/octet-stream",
			PartSize:    partSize,
		})
		if err != nil {
			return translateError(o.bucket, key, err)
		}
		return nil
	}), nil
}

func translateError(bucket, key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey":
		return errors.Errorf("minio: %s/%s: %w", bucket, key, operator.ErrNotExist)
	case "NoSuchBucket":
		return errors.Errorf("minio: bucket %q not found: %w", bucket, err)
	}
	return errors.Errorf("minio: %s/%s: %w", bucket, key, err)
}
