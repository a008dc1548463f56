package tagfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/linkedin/goavro/v2"

	"github.com/photontag/tagstreamd/pkg/tagio"
)

// s3Backend completes pkg/archive/s3Backend.go's bare S3ArchiveConfig/
// S3Archive stub (the teacher declares the config shape but never wires a
// client to it). A recording is buffered as one Avro object-container in
// memory and uploaded whole on Close, since S3 objects have no append
// primitive; Open still enforces "refuses to overwrite" with a HeadObject
// existence check before any bytes are buffered.
type s3Backend struct {
	client *s3.Client
	bucket string
	prefix string

	key    string
	buf    *bytes.Buffer
	writer *goavro.OCFWriter
}

func newS3Backend(cfg Config) (*s3Backend, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("tagfile: load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &s3Backend{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (b *s3Backend) Open(recordingPath string) error {
	if b.writer != nil {
		return fmt.Errorf("tagfile: s3 backend already has an open recording")
	}
	if recordingPath == "" {
		recordingPath = defaultRecordingName(time.Now())
	}
	key := recordingPath
	if b.prefix != "" {
		key = path.Join(b.prefix, recordingPath)
	}

	ctx := context.Background()
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(key)})
	var notFound *types.NotFound
	switch {
	case err == nil:
		return fmt.Errorf("tagfile: s3 object %s/%s already exists", b.bucket, key)
	case errors.As(err, &notFound):
		// expected: no prior object at this key.
	default:
		return fmt.Errorf("tagfile: check existing object %s/%s: %w", b.bucket, key, err)
	}

	codec, err := newTagCodec()
	if err != nil {
		return fmt.Errorf("tagfile: build tag codec: %w", err)
	}
	buf := &bytes.Buffer{}
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               buf,
		Codec:           codec,
		CompressionName: goavro.CompressionDeflateLabel,
	})
	if err != nil {
		return fmt.Errorf("tagfile: create avro writer for %s: %w", key, err)
	}

	b.key = key
	b.buf = buf
	b.writer = w
	return nil
}

func (b *s3Backend) Append(tags []tagio.Tag) error {
	if b.writer == nil {
		return fmt.Errorf("tagfile: append with no open recording")
	}
	records := make([]map[string]any, len(tags))
	for i, t := range tags {
		records[i] = tagRecord(t.Time, t.Channel)
	}
	if err := b.writer.Append(records); err != nil {
		return fmt.Errorf("tagfile: append %d tags: %w", len(tags), err)
	}
	return nil
}

func (b *s3Backend) Close() error {
	if b.writer == nil {
		return nil
	}
	_, err := b.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
		Body:   bytes.NewReader(b.buf.Bytes()),
	})
	b.writer = nil
	b.buf = nil
	if err != nil {
		return fmt.Errorf("tagfile: upload %s/%s: %w", b.bucket, b.key, err)
	}
	return nil
}
