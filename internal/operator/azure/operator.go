package azure

import (
	"context"
	"io"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/rs/zerolog/log"
	"gitlab.com/tozd/go/errors"

	"github.com/Chapsvision-dev/ferry/internal/operator"
)

const (
	blockSize   = 8 * 1024 * 1024
	concurrency = 4
)

// blobAPI is the part of *azblob.Client the operator calls.
type blobAPI interface {
	DownloadStream(ctx context.Context, containerName, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
	UploadStream(ctx context.Context, containerName, blobName string, body io.Reader, o *azblob.UploadStreamOptions) (azblob.UploadStreamResponse, error)
}

type Operator struct {
	client    blobAPI
	container string
	root      string
}

func (p *Operator) Kind() string { return Kind }

// Reader downloads a blob as a stream.
func (p *Operator) Reader(ctx context.Context, path string) (io.ReadCloser, error) {
	key := operator.JoinKey(p.root, path)
	resp, err := p.client.DownloadStream(ctx, p.container, key, nil)
	if err != nil {
		return nil, translateError(p.container, key, err)
	}
	log.Debug().Str("action", "azure_download").Str("container", p.container).Str("key", key).
		Msg("blob opened")
	return resp.Body, nil
}

// Writer uploads through UploadStream. Staged blocks are only committed once
// the stream ends cleanly, so Abort leaves any existing blob untouched.
func (p *Operator) Writer(ctx context.Context, path string) (operator.Writer, error) {
	key := operator.JoinKey(p.root, path)
	if key == "" {
		return nil, errors.New("azblob: empty blob name")
	}
	return operator.NewPipeWriter(ctx, func(ctx context.Context, r io.Reader) error {
		start := time.Now()
		_, err := p.client.UploadStream(ctx, p.container, key, r, &azblob.UploadStreamOptions{
			BlockSize:   blockSize,
			Concurrency: concurrency,
		})
		if err != nil {
			return translateError(p.container, key, err)
		}
		log.Debug().Str("action", "azure_upload").Str("container", p.container).Str("key", key).
			Dur("elapsed_ms", time.Since(start)).Msg("upload OK")
		return nil
	}), nil
}
