// Package s3 implements the object store on Amazon S3 or any
// S3-compatible backend (MinIO, localstack).
//
// Key prefixes stand in for directories: a folder exists as the zero-byte
// marker object "<key>/" plus whatever objects live under the prefix.
// IterDir reports CommonPrefixes as directory entries. DownloadDir streams
// a zip built from ListObjectsV2 pages.
//
// MoveDir copies then deletes object-by-object and is therefore not
// atomic with respect to a concurrent writer under the source prefix;
// concurrent writes during a move are not supported.
package s3

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/store/object"
	"github.com/driftbox/driftbox/pkg/vpath"
)

// deleteBatchSize is the S3 DeleteObjects page limit.
const deleteBatchSize = 1000

// Config contains S3 object store configuration.
type Config struct {
	// Endpoint overrides the AWS endpoint for S3-compatible backends.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Region is the bucket region.
	Region string `mapstructure:"region" yaml:"region"`

	// Bucket is the bucket holding all namespaces.
	Bucket string `mapstructure:"bucket" yaml:"bucket"`

	// KeyPrefix is an optional prefix prepended to every key.
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`

	// AccessKeyID and SecretAccessKey are static credentials; when empty
	// the default AWS credential chain is used.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`

	// ForcePathStyle enables path-style addressing (MinIO, localstack).
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// NewClient creates an S3 client from configuration parameters.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return client, nil
}

// S3Store implements object.Store on an S3 bucket.
type S3Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// New creates an S3 object store and verifies bucket access.
func New(ctx context.Context, client *s3.Client, bucket, keyPrefix string) (*S3Store, error) {
	if client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", bucket, err)
	}
	if keyPrefix != "" && !strings.HasSuffix(keyPrefix, "/") {
		keyPrefix += "/"
	}
	return &S3Store{client: client, bucket: bucket, keyPrefix: keyPrefix}, nil
}

// key maps (ns, path) to the object key, preserving original casing.
func (s *S3Store) key(ns string, path vpath.Path) string {
	if path.IsRoot() {
		return s.keyPrefix + ns
	}
	return s.keyPrefix + ns + "/" + path.String()
}

// dirKey is the prefix under which a directory's children live. It doubles
// as the key of the zero-byte directory marker object.
func (s *S3Store) dirKey(ns string, path vpath.Path) string {
	return s.key(ns, path) + "/"
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}

func mapS3Error(err error, path string) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return apperror.NotFound(path)
	}
	return apperror.Internal("object store failure", err)
}

// Save uploads the content under (ns, path).
func (s *S3Store) Save(ctx context.Context, ns string, path vpath.Path, r io.Reader) (object.SaveResult, error) {
	// PutObject wants a seekable body for signing, so the content is
	// buffered. Uploads are already size-capped by the policy layer.
	data, err := io.ReadAll(r)
	if err != nil {
		return object.SaveResult{}, apperror.Internal("failed to read content", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ns, path)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return object.SaveResult{}, mapS3Error(err, path.String())
	}
	return object.SaveResult{Size: int64(len(data))}, nil
}

// Download opens the blob at (ns, path).
func (s *S3Store) Download(ctx context.Context, ns string, path vpath.Path) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ns, path)),
	})
	if err != nil {
		return nil, mapS3Error(err, path.String())
	}
	return out.Body, nil
}

// DownloadDir streams a zip archive of every object under the prefix.
func (s *S3Store) DownloadDir(ctx context.Context, ns string, path vpath.Path) (io.ReadCloser, error) {
	prefix := s.dirKey(ns, path)
	exists, err := s.prefixExists(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperror.NotFound(path.String())
	}

	pr, pw := io.Pipe()
	go func() {
		zw := zip.NewWriter(pw)
		err := s.eachObject(ctx, prefix, func(obj types.Object) error {
			key := aws.ToString(obj.Key)
			rel := strings.TrimPrefix(key, prefix)
			if rel == "" { // directory marker
				return nil
			}
			w, err := zw.Create(rel)
			if err != nil {
				return err
			}
			out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(key),
			})
			if err != nil {
				return err
			}
			_, err = io.Copy(w, out.Body)
			_ = out.Body.Close()
			return err
		})
		if cerr := zw.Close(); err == nil {
			err = cerr
		}
		_ = pw.CloseWithError(err)
	}()
	return pr, nil
}

// eachObject pages through every object under prefix.
func (s *S3Store) eachObject(ctx context.Context, prefix string, fn func(types.Object) error) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, obj := range page.Contents {
			if err := fn(obj); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *S3Store) prefixExists(ctx context.Context, prefix string) (bool, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, apperror.Internal("failed to list objects", err)
	}
	return aws.ToInt32(out.KeyCount) > 0, nil
}

func (s *S3Store) copyObject(ctx context.Context, fromKey, toKey string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + fromKey),
		Key:        aws.String(toKey),
	})
	return err
}

// Move copies the blob to the destination key and deletes the source.
func (s *S3Store) Move(ctx context.Context, fromNS string, from vpath.Path, toNS string, to vpath.Path) error {
	fromKey := s.key(fromNS, from)
	if err := s.copyObject(ctx, fromKey, s.key(toNS, to)); err != nil {
		return mapS3Error(err, from.String())
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fromKey),
	})
	if err != nil {
		return mapS3Error(err, from.String())
	}
	return nil
}

// MoveDir copies every object under the source prefix and then deletes
// the source prefix. Not atomic with a concurrent writer.
func (s *S3Store) MoveDir(ctx context.Context, fromNS string, from vpath.Path, toNS string, to vpath.Path) error {
	fromPrefix := s.dirKey(fromNS, from)
	toPrefix := s.dirKey(toNS, to)
	err := s.eachObject(ctx, fromPrefix, func(obj types.Object) error {
		fromKey := aws.ToString(obj.Key)
		toKey := toPrefix + strings.TrimPrefix(fromKey, fromPrefix)
		return s.copyObject(ctx, fromKey, toKey)
	})
	if err != nil {
		return mapS3Error(err, from.String())
	}
	return s.deletePrefix(ctx, fromPrefix, from.String())
}

// Delete removes a single blob, reporting NotFound for missing keys.
func (s *S3Store) Delete(ctx context.Context, ns string, path vpath.Path) error {
	key := s.key(ns, path)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapS3Error(err, path.String())
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return mapS3Error(err, path.String())
}

// deletePrefix removes every object under prefix in DeleteObjects batches.
func (s *S3Store) deletePrefix(ctx context.Context, prefix, path string) error {
	batch := make([]types.ObjectIdentifier, 0, deleteBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		batch = batch[:0]
		return err
	}
	err := s.eachObject(ctx, prefix, func(obj types.Object) error {
		batch = append(batch, types.ObjectIdentifier{Key: obj.Key})
		if len(batch) == deleteBatchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	return mapS3Error(err, path)
}

// DeleteDir removes the directory marker and every object under it.
func (s *S3Store) DeleteDir(ctx context.Context, ns string, path vpath.Path) error {
	return s.deletePrefix(ctx, s.dirKey(ns, path), path.String())
}

// EmptyDir removes every child object but restores the directory marker.
func (s *S3Store) EmptyDir(ctx context.Context, ns string, path vpath.Path) error {
	if err := s.deletePrefix(ctx, s.dirKey(ns, path), path.String()); err != nil {
		return err
	}
	return s.MakeDirs(ctx, ns, path)
}

// MakeDirs writes zero-byte marker objects for the directory and any
// missing ancestors.
func (s *S3Store) MakeDirs(ctx context.Context, ns string, path vpath.Path) error {
	dirs := append([]vpath.Path{path}, path.Parents()...)
	for _, dir := range dirs {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.dirKey(ns, dir)),
			Body:   strings.NewReader(""),
		})
		if err != nil {
			return mapS3Error(err, dir.String())
		}
	}
	return nil
}

// Exists reports whether a blob or directory exists at (ns, path).
func (s *S3Store) Exists(ctx context.Context, ns string, path vpath.Path) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ns, path)),
	})
	if err == nil {
		return true, nil
	}
	if !isNotFound(err) {
		return false, apperror.Internal("failed to head object", err)
	}
	// Fall back to prefix probing: the path may be a directory.
	return s.prefixExists(ctx, s.dirKey(ns, path))
}

// IterDir lists immediate children: CommonPrefixes become directory
// entries, objects become file entries. The directory marker is skipped.
func (s *S3Store) IterDir(ctx context.Context, ns string, path vpath.Path, fn object.IterFunc) error {
	prefix := s.dirKey(ns, path)
	exists, err := s.prefixExists(ctx, prefix)
	if err != nil {
		return err
	}
	if !exists {
		return apperror.NotFound(path.String())
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return apperror.Internal("failed to list objects", err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			entry := object.DirEntry{
				Name:  name,
				Path:  path.Join(name),
				IsDir: true,
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" { // directory marker
				continue
			}
			var modTime time.Time
			if obj.LastModified != nil {
				modTime = *obj.LastModified
			}
			entry := object.DirEntry{
				Name:    name,
				Path:    path.Join(name),
				Size:    aws.ToInt64(obj.Size),
				ModTime: modTime,
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
	}
	return nil
}
