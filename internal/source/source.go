// Package source opens the event stream a transfer reads from: a local file or
// an S3 object addressed as s3://bucket/key.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const s3Scheme = "s3://"

var (
	// ErrEmptyPath is returned when no input path was supplied.
	ErrEmptyPath = errors.New("input path is empty")
	// ErrNotRegular is returned when a local input path is not a regular file.
	ErrNotRegular = errors.New("input path is not a regular file")
)

// ObjectGetter is the subset of the S3 client used to stream objects.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Location is a parsed input path.
type Location struct {
	Path   string
	Bucket string
	Key    string
}

// IsS3 reports whether the location refers to an S3 object.
func (l Location) IsS3() bool {
	return l.Bucket != ""
}

func (l Location) String() string {
	if l.IsS3() {
		return s3Scheme + l.Bucket + "/" + l.Key
	}
	return l.Path
}

// Parse classifies path as a local file or an S3 object.
func Parse(path string) (Location, error) {
	if path == "" {
		return Location{}, ErrEmptyPath
	}
	if !strings.HasPrefix(path, s3Scheme) {
		return Location{Path: path}, nil
	}

	bucket, key, _ := strings.Cut(strings.TrimPrefix(path, s3Scheme), "/")
	if bucket == "" || key == "" {
		return Location{}, fmt.Errorf("invalid S3 location %q: want s3://bucket/key", path)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// CheckLocal verifies that a local path exists, is a regular file and can be
// opened for reading. S3 locations are not checked.
func CheckLocal(loc Location) error {
	if loc.IsS3() {
		return nil
	}

	info, err := os.Stat(loc.Path)
	if err != nil {
		return fmt.Errorf("input file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotRegular, loc.Path)
	}

	// #nosec G304 -- the input path is supplied by the operator.
	f, err := os.Open(loc.Path)
	if err != nil {
		return fmt.Errorf("input file not readable: %w", err)
	}
	return f.Close()
}

// Opener opens input locations. The S3 client is created on first use unless
// one was supplied.
type Opener struct {
	S3     ObjectGetter
	Region string
}

// Open returns a stream for path. The caller owns the returned ReadCloser and must
// close it.
func (o *Opener) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	loc, err := Parse(path)
	if err != nil {
		return nil, err
	}

	if !loc.IsS3() {
		if err := CheckLocal(loc); err != nil {
			return nil, err
		}
		// #nosec G304 -- the input path is supplied by the operator.
		return os.Open(loc.Path)
	}

	if o.S3 == nil {
		client, err := newS3Client(ctx, o.Region)
		if err != nil {
			return nil, err
		}
		o.S3 = client
	}

	out, err := o.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", loc, err)
	}
	slog.Debug("opened S3 object", "location", loc.String(), "size", aws.ToInt64(out.ContentLength))
	return out.Body, nil
}

func newS3Client(ctx context.Context, region string) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}
