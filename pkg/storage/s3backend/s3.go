// Package s3backend implements a storage backend backed by an S3-
// compatible object store, for containers whose `type: local` storage
// would otherwise need to live on a single machine's disk.
package s3backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/mitchellh/mapstructure"

	"github.com/wildland/wildland-go/pkg/storage"
	"github.com/wildland/wildland-go/pkg/wlerr"
	"github.com/wildland/wildland-go/pkg/wlobject"
)

func init() {
	storage.Register("s3", New)
}

// Params is the backend-specific portion of a `type: s3` storage
// manifest body.
type Params struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access-key"`
	SecretAccessKey string `mapstructure:"secret-key"`
	ForcePathStyle  bool   `mapstructure:"force-path-style"`
	ReadOnly        bool   `mapstructure:"read-only"`
}

// Backend stores container contents as keys under Params.Prefix in an S3
// bucket. Directories have no first-class representation in S3; the
// backend simulates them the way the object storage driver family does,
// by listing common prefixes and by writing a zero-byte marker object
// whenever Mkdir is called explicitly.
type Backend struct {
	storage.BaseBackend

	client   *s3.Client
	bucket   string
	prefix   string
	readOnly bool

	mu      sync.Mutex
	handles map[*handle]struct{}
}

type handle struct {
	key    string
	buf    *bytes.Buffer
	write  bool
	closed bool
}

// New constructs the S3 backend from a decoded storage manifest.
func New(s *wlobject.Storage) (storage.Backend, error) {
	var p Params
	if err := mapstructure.Decode(s.Params, &p); err != nil {
		return nil, wlerr.Wrap(wlerr.SchemaError, err, "decoding s3 backend params")
	}
	if p.Bucket == "" {
		return nil, wlerr.New(wlerr.SchemaError, "s3 backend requires params.bucket")
	}

	ctx := context.Background()
	var optFns []func(*awsconfig.LoadOptions) error
	if p.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(p.Region))
	}
	if p.AccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(p.AccessKeyID, p.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, wlerr.Wrap(wlerr.BackendMountFailed, err, "loading aws config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if p.Endpoint != "" {
			o.BaseEndpoint = &p.Endpoint
		}
		o.UsePathStyle = p.ForcePathStyle
	})

	return &Backend{
		client:   client,
		bucket:   p.Bucket,
		prefix:   strings.Trim(p.Prefix, "/"),
		readOnly: p.ReadOnly,
		handles:  make(map[*handle]struct{}),
	}, nil
}

func (b *Backend) Type() string   { return "s3" }
func (b *Backend) ReadOnly() bool { return b.readOnly }

func (b *Backend) Mount(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &b.bucket})
	if err != nil {
		return wlerr.Wrap(wlerr.BackendMountFailed, err, "bucket %s not reachable", b.bucket)
	}
	return nil
}

func (b *Backend) Unmount(ctx context.Context) error { return nil }

func (b *Backend) objectKey(p string) string {
	clean := strings.TrimPrefix(path.Clean("/"+p), "/")
	if b.prefix == "" {
		return clean
	}
	if clean == "" {
		return b.prefix
	}
	return b.prefix + "/" + clean
}

func (b *Backend) Getattr(ctx context.Context, p string) (storage.Attr, error) {
	key := b.objectKey(p)
	head, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &b.bucket, Key: &key})
	if err == nil {
		size := int64(0)
		if head.ContentLength != nil {
			size = *head.ContentLength
		}
		mtime := time.Time{}
		if head.LastModified != nil {
			mtime = *head.LastModified
		}
		token := ""
		if head.ETag != nil {
			token = *head.ETag
		}
		return storage.Attr{Mode: 0o100644, Size: size, Mtime: mtime, Token: token}, nil
	}
	if !isNotFound(err) {
		return storage.Attr{}, wlerr.Wrap(wlerr.IOError, err, "head_object %s", key)
	}

	// No object at this exact key: treat it as a directory if any object
	// exists under key+"/", mirroring the S3 storage-driver convention of
	// simulating directories via common prefixes.
	dirKey := key
	if dirKey != "" {
		dirKey += "/"
	}
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: &b.bucket, Prefix: &dirKey, MaxKeys: awsInt32(1),
	})
	if err != nil {
		return storage.Attr{}, wlerr.Wrap(wlerr.IOError, err, "list_objects %s", dirKey)
	}
	if len(out.Contents) == 0 && len(out.CommonPrefixes) == 0 {
		return storage.Attr{}, wlerr.New(wlerr.ENOENT, "no such object: %s", p)
	}
	return storage.Attr{Mode: 0o40755}, nil
}

func awsInt32(v int32) *int32 { return &v }

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

func (b *Backend) Readdir(ctx context.Context, p string) ([]string, error) {
	key := b.objectKey(p)
	prefix := key
	if prefix != "" {
		prefix += "/"
	}
	var names []string
	seen := map[string]struct{}{}
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: &b.bucket, Prefix: &prefix, Delimiter: strPtr("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wlerr.Wrap(wlerr.IOError, err, "list_objects %s", prefix)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(*obj.Key, prefix)
			if name == "" {
				continue
			}
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(*cp.Prefix, prefix), "/")
			if name == "" {
				continue
			}
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}
	return names, nil
}

func strPtr(s string) *string { return &s }

func (b *Backend) Open(ctx context.Context, p string, flags int) (storage.Handle, error) {
	key := b.objectKey(p)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &b.bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return nil, wlerr.New(wlerr.ENOENT, "no such object: %s", p)
		}
		return nil, wlerr.Wrap(wlerr.IOError, err, "get_object %s", key)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, wlerr.Wrap(wlerr.IOError, err, "reading object %s", key)
	}
	h := &handle{key: key, buf: bytes.NewBuffer(data)}
	b.track(h)
	return h, nil
}

func (b *Backend) Create(ctx context.Context, p string, flags int, mode uint32) (storage.Handle, error) {
	if b.readOnly {
		return nil, wlerr.New(wlerr.EROFS, "backend is read-only")
	}
	h := &handle{key: b.objectKey(p), buf: &bytes.Buffer{}, write: true}
	b.track(h)
	return h, nil
}

func (b *Backend) track(h *handle) {
	b.mu.Lock()
	b.handles[h] = struct{}{}
	b.mu.Unlock()
}

func asHandle(h storage.Handle) (*handle, error) {
	hh, ok := h.(*handle)
	if !ok || hh == nil {
		return nil, wlerr.New(wlerr.IOError, "invalid s3 file handle")
	}
	return hh, nil
}

func (b *Backend) Read(ctx context.Context, h storage.Handle, off int64, size int) ([]byte, error) {
	hh, err := asHandle(h)
	if err != nil {
		return nil, err
	}
	data := hh.buf.Bytes()
	if off >= int64(len(data)) {
		return nil, nil
	}
	end := off + int64(size)
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[off:end], nil
}

func (b *Backend) Write(ctx context.Context, h storage.Handle, off int64, data []byte) (int, error) {
	if b.readOnly {
		return 0, wlerr.New(wlerr.EROFS, "backend is read-only")
	}
	hh, err := asHandle(h)
	if err != nil {
		return 0, err
	}
	hh.write = true
	cur := hh.buf.Bytes()
	need := int(off) + len(data)
	if need > len(cur) {
		grown := make([]byte, need)
		copy(grown, cur)
		cur = grown
	}
	copy(cur[off:], data)
	hh.buf = bytes.NewBuffer(cur)
	return len(data), nil
}

func (b *Backend) Truncate(ctx context.Context, h storage.Handle, size int64) error {
	if b.readOnly {
		return wlerr.New(wlerr.EROFS, "backend is read-only")
	}
	hh, err := asHandle(h)
	if err != nil {
		return err
	}
	data := hh.buf.Bytes()
	if int64(len(data)) >= size {
		hh.buf = bytes.NewBuffer(data[:size])
	} else {
		grown := make([]byte, size)
		copy(grown, data)
		hh.buf = bytes.NewBuffer(grown)
	}
	hh.write = true
	return nil
}

func (b *Backend) Fsync(ctx context.Context, h storage.Handle) error {
	hh, err := asHandle(h)
	if err != nil {
		return err
	}
	return b.flush(ctx, hh)
}

func (b *Backend) flush(ctx context.Context, hh *handle) error {
	if !hh.write || hh.closed {
		return nil
	}
	reader := bytes.NewReader(hh.buf.Bytes())
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &b.bucket, Key: &hh.key, Body: reader,
	})
	if err != nil {
		return wlerr.Wrap(wlerr.IOError, err, "put_object %s", hh.key)
	}
	return nil
}

func (b *Backend) Flush(ctx context.Context, h storage.Handle) error {
	hh, err := asHandle(h)
	if err != nil {
		return err
	}
	return b.flush(ctx, hh)
}

func (b *Backend) Release(ctx context.Context, h storage.Handle) error {
	hh, err := asHandle(h)
	if err != nil {
		return err
	}
	if err := b.flush(ctx, hh); err != nil {
		return err
	}
	hh.closed = true
	b.mu.Lock()
	delete(b.handles, hh)
	b.mu.Unlock()
	return nil
}

func (b *Backend) Mkdir(ctx context.Context, p string, mode uint32) error {
	if b.readOnly {
		return wlerr.New(wlerr.EROFS, "backend is read-only")
	}
	key := b.objectKey(p) + "/.wildland-keep"
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &b.bucket, Key: &key, Body: bytes.NewReader(nil),
	})
	if err != nil {
		return wlerr.Wrap(wlerr.IOError, err, "creating directory marker %s", key)
	}
	return nil
}

func (b *Backend) Rmdir(ctx context.Context, p string) error {
	if b.readOnly {
		return wlerr.New(wlerr.EROFS, "backend is read-only")
	}
	names, err := b.Readdir(ctx, p)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name != ".wildland-keep" {
			return wlerr.New(wlerr.ENOTEMPTY, "directory not empty: %s", p)
		}
	}
	key := b.objectKey(p) + "/.wildland-keep"
	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &b.bucket, Key: &key})
	if err != nil && !isNotFound(err) {
		return wlerr.Wrap(wlerr.IOError, err, "removing directory marker %s", key)
	}
	return nil
}

func (b *Backend) Unlink(ctx context.Context, p string) error {
	if b.readOnly {
		return wlerr.New(wlerr.EROFS, "backend is read-only")
	}
	key := b.objectKey(p)
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &b.bucket, Key: &key})
	if err != nil {
		return wlerr.Wrap(wlerr.IOError, err, "delete_object %s", key)
	}
	return nil
}

func (b *Backend) Rename(ctx context.Context, src, dst string) error {
	if b.readOnly {
		return wlerr.New(wlerr.EROFS, "backend is read-only")
	}
	srcKey := b.objectKey(src)
	dstKey := b.objectKey(dst)
	copySource := b.bucket + "/" + srcKey
	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket: &b.bucket, Key: &dstKey, CopySource: &copySource,
	})
	if err != nil {
		return wlerr.Wrap(wlerr.IOError, err, "copy_object %s -> %s", srcKey, dstKey)
	}
	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &b.bucket, Key: &srcKey})
	if err != nil {
		return wlerr.Wrap(wlerr.IOError, err, "delete_object %s", srcKey)
	}
	return nil
}

func (b *Backend) Chmod(ctx context.Context, p string, mode uint32) error { return nil }
func (b *Backend) Chown(ctx context.Context, p string, uid, gid uint32) error { return nil }
func (b *Backend) Utimens(ctx context.Context, p string, atime, mtime time.Time) error {
	return nil
}

func (b *Backend) GetHash(ctx context.Context, p string) (string, error) {
	key := b.objectKey(p)
	head, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &b.bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return "", wlerr.New(wlerr.ENOENT, "no such object: %s", p)
		}
		return "", wlerr.Wrap(wlerr.IOError, err, "head_object %s", key)
	}
	if head.ETag != nil {
		return strings.Trim(*head.ETag, `"`), nil
	}
	return "", wlerr.New(wlerr.IOError, "object %s has no etag", key)
}
