package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/segfetch/internal/utils"
)

var ErrEmptyDestination = errors.New("destination must not be empty")

// Uploader is the part of the S3 upload manager the sink needs.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Writer persists a fetched payload to a local path or an s3:// URL.
type Writer struct {
	profile  string
	uploader Uploader
}

func NewWriter(profile string) *Writer {
	return &Writer{profile: profile}
}

// WithUploader replaces the lazily built S3 upload manager.
func (w *Writer) WithUploader(u Uploader) *Writer {
	w.uploader = u
	return w
}

// Write stores payload at dest and returns where it actually landed.
func (w *Writer) Write(ctx context.Context, dest string, payload []byte) (string, error) {
	if dest == "" {
		return "", ErrEmptyDestination
	}
	if strings.HasPrefix(dest, "s3://") {
		return w.writeS3(ctx, dest, payload)
	}
	return writeFile(dest, payload)
}

// writeFile writes to a temp file beside dest and renames it into place.
// An existing dest is kept and the payload goes to the next free name.
func writeFile(dest string, payload []byte) (string, error) {
	if _, err := os.Stat(dest); err == nil {
		dest = utils.RenewOutputPath(dest)
	}
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("error creating output directory: %w", err)
	}
	file, err := os.CreateTemp(dir, ".segfetch-*")
	if err != nil {
		return "", fmt.Errorf("error creating temp file: %w", err)
	}

	successful := false
	defer func() {
		if !successful {
			file.Close()
			os.Remove(file.Name())
		}
	}()

	if _, err := file.Write(payload); err != nil {
		return "", fmt.Errorf("error writing payload: %w", err)
	}
	if err := file.Sync(); err != nil {
		return "", fmt.Errorf("error syncing temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("error closing temp file: %w", err)
	}
	if err := os.Rename(file.Name(), dest); err != nil {
		return "", fmt.Errorf("error renaming (finalizing) output file: %w", err)
	}
	successful = true
	log.Info().Str("op", "sink/file").Int("bytes", len(payload)).Msgf("payload written to %s", dest)
	return dest, nil
}

func (w *Writer) writeS3(ctx context.Context, dest string, payload []byte) (string, error) {
	bucket, key, err := ParseS3URL(dest)
	if err != nil {
		return "", err
	}
	if w.uploader == nil {
		cfg, err := config.LoadDefaultConfig(ctx,
			config.WithSharedConfigProfile(w.profile),
			config.WithRetryMode("adaptive"),
		)
		if err != nil {
			return "", fmt.Errorf("error loading AWS config: %w", err)
		}
		w.uploader = manager.NewUploader(s3.NewFromConfig(cfg))
	}
	_, err = w.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
	})
	if err != nil {
		return "", fmt.Errorf("error uploading to s3://%s/%s: %w", bucket, key, err)
	}
	log.Info().Str("op", "sink/s3").Int("bytes", len(payload)).Msgf("payload uploaded to s3://%s/%s", bucket, key)
	return dest, nil
}

func ParseS3URL(url string) (string, string, error) {
	url = strings.TrimPrefix(url, "s3://")
	parts := strings.SplitN(url, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid S3 URL format")
	}
	if len(parts) < 2 || parts[1] == "" || strings.HasSuffix(parts[1], "/") {
		return "", "", fmt.Errorf("S3 destination needs an object key: s3://%s/<key>", parts[0])
	}
	return parts[0], parts[1], nil
}
