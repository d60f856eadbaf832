// Package imagestore loads receipt images from local paths or Cloud Storage
// and uploads new ones.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/dvloznov/papermes/internal/apperrors"
)

const (
	gcsScheme     = "gs://"
	uploadPrefix  = "receipts/"
	uploadTimeout = 2 * time.Minute
)

// Config selects the bucket uploads go to and how the storage client connects.
type Config struct {
	Bucket    string
	Endpoint  string
	Anonymous bool
}

// Image is a loaded receipt image.
type Image struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Store reads and writes receipt images. The storage client is created on
// first use so that local-only workflows never need credentials.
type Store struct {
	cfg Config

	mu     sync.Mutex
	client *storage.Client
}

// New returns a Store for cfg.
func New(cfg Config) *Store {
	return &Store{cfg: cfg}
}

func (s *Store) storageClient(ctx context.Context) (*storage.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	var opts []option.ClientOption
	if s.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.cfg.Endpoint))
	}
	if s.cfg.Anonymous {
		opts = append(opts, option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	s.client = client
	return client, nil
}

// Close releases the storage client if one was created.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// Fetch loads an image from a local path or a gs:// URI.
// A missing file or object is reported as apperrors.NotFoundError.
func (s *Store) Fetch(ctx context.Context, ref string) (*Image, error) {
	var (
		data []byte
		err  error
		name string
	)
	if IsGCSURI(ref) {
		data, err = s.fetchFromGCS(ctx, ref)
		name = ExtractFilename(ref)
	} else {
		data, err = readLocal(ref)
		name = filepath.Base(ref)
	}
	if err != nil {
		return nil, err
	}
	return &Image{Name: name, MIMEType: DetectMIME(data), Data: data}, nil
}

func readLocal(p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &apperrors.NotFoundError{Resource: "image", Path: p}
	}
	if err != nil {
		return nil, fmt.Errorf("readLocal: reading %s: %w", p, err)
	}
	return data, nil
}

func (s *Store) fetchFromGCS(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}

	client, err := s.storageClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetchFromGCS: %w", err)
	}

	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return nil, &apperrors.NotFoundError{Resource: "image", Path: uri}
	}
	if err != nil {
		return nil, fmt.Errorf("fetchFromGCS: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("fetchFromGCS: reading bytes: %w", err)
	}
	return data, nil
}

// UploadFile uploads a local image to the configured bucket and returns its gs:// URI.
func (s *Store) UploadFile(ctx context.Context, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", &apperrors.NotFoundError{Resource: "image", Path: filePath}
	}
	if err != nil {
		return "", fmt.Errorf("UploadFile: open file %q: %w", filePath, err)
	}
	defer f.Close()

	return s.Upload(ctx, filepath.Base(filePath), f)
}

// Upload streams r to a new object named after filename and returns its gs:// URI.
func (s *Store) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	if s.cfg.Bucket == "" {
		return "", apperrors.NewValidationError("storage.bucket", "storage.bucket must be set to upload images")
	}

	client, err := s.storageClient(ctx)
	if err != nil {
		return "", fmt.Errorf("Upload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	object := ObjectName(filename)
	w := client.Bucket(s.cfg.Bucket).Object(object).NewWriter(ctx)

	var head [512]byte
	n, err := io.ReadFull(r, head[:])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		_ = w.Close()
		return "", fmt.Errorf("Upload: reading image: %w", err)
	}
	w.ContentType = DetectMIME(head[:n])

	if _, err := w.Write(head[:n]); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Upload: writing image: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Upload: copy image to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Upload: finalize upload: %w", err)
	}

	return gcsScheme + s.cfg.Bucket + "/" + object, nil
}

// List returns the gs:// URIs of uploaded receipts whose object name starts with prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if s.cfg.Bucket == "" {
		return nil, apperrors.NewValidationError("storage.bucket", "storage.bucket must be set to list images")
	}

	client, err := s.storageClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	uris := []string{}
	it := client.Bucket(s.cfg.Bucket).Objects(ctx, &storage.Query{Prefix: uploadPrefix + prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("List: iterating objects: %w", err)
		}
		uris = append(uris, gcsScheme+attrs.Bucket+"/"+attrs.Name)
	}
	return uris, nil
}

// ObjectName returns the object key an upload of filename is stored under.
func ObjectName(filename string) string {
	base := path.Base(filepath.ToSlash(filename))
	if base == "." || base == "/" {
		base = "receipt"
	}
	return uploadPrefix + uuid.NewString() + "-" + base
}

// IsGCSURI reports whether ref points into Cloud Storage.
func IsGCSURI(ref string) bool {
	return strings.HasPrefix(ref, gcsScheme)
}

// ParseGCSURI splits "gs://bucket/path/to/file" into bucket and object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !IsGCSURI(uri) {
		return "", "", apperrors.NewValidationError("image_uri", fmt.Sprintf("invalid GCS URI: %s", uri))
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, gcsScheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", apperrors.NewValidationError("image_uri", fmt.Sprintf("invalid GCS URI (no object path): %s", uri))
	}
	return parts[0], parts[1], nil
}

// ExtractFilename returns the last path element of a gs:// URI.
// e.g., "gs://bucket/folder/receipt.jpg" → "receipt.jpg"
func ExtractFilename(uri string) string {
	trimmed := strings.TrimPrefix(uri, gcsScheme)
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

// DetectMIME sniffs the content type of an image or PDF receipt. Anything
// else is reported as image/jpeg.
func DetectMIME(data []byte) string {
	mime := http.DetectContentType(data)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if !strings.HasPrefix(mime, "image/") && mime != "application/pdf" {
		return "image/jpeg"
	}
	return mime
}
