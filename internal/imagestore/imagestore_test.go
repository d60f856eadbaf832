package imagestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/papermes/internal/apperrors"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestFetchLocal(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "receipt.png")
	require.NoError(t, os.WriteFile(p, pngHeader, 0o600))

	img, err := New(Config{}).Fetch(context.Background(), p)

	require.NoError(t, err)
	assert.Equal(t, "receipt.png", img.Name)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, pngHeader, img.Data)
}

func TestFetchLocalMissing(t *testing.T) {
	_, err := New(Config{}).Fetch(context.Background(), filepath.Join(t.TempDir(), "nope.jpg"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	var nf *apperrors.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "image", nf.Resource)
}

func TestFetchMalformedGCSURI(t *testing.T) {
	_, err := New(Config{}).Fetch(context.Background(), "gs://bucket-only")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestUploadRequiresBucket(t *testing.T) {
	s := New(Config{})

	_, err := s.Upload(context.Background(), "r.jpg", strings.NewReader("x"))
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = s.List(context.Background(), "")
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestUploadFileMissing(t *testing.T) {
	_, err := New(Config{Bucket: "b"}).UploadFile(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestCloseWithoutClient(t *testing.T) {
	assert.NoError(t, New(Config{}).Close())
}

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		object  string
		wantErr bool
	}{
		{uri: "gs://receipts/2024/march.jpg", bucket: "receipts", object: "2024/march.jpg"},
		{uri: "gs://b/o", bucket: "b", object: "o"},
		{uri: "gs://b", wantErr: true},
		{uri: "gs:///o", wantErr: true},
		{uri: "/tmp/receipt.jpg", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseGCSURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.object, object)
		})
	}
}

func TestExtractFilename(t *testing.T) {
	assert.Equal(t, "receipt.jpg", ExtractFilename("gs://bucket/folder/receipt.jpg"))
	assert.Equal(t, "bucket", ExtractFilename("gs://bucket"))
}

func TestObjectName(t *testing.T) {
	name := ObjectName("/home/me/Coffee.jpg")
	assert.True(t, strings.HasPrefix(name, "receipts/"))
	assert.True(t, strings.HasSuffix(name, "-Coffee.jpg"))
	assert.NotEqual(t, name, ObjectName("/home/me/Coffee.jpg"))
}

func TestDetectMIME(t *testing.T) {
	assert.Equal(t, "image/png", DetectMIME(pngHeader))
	assert.Equal(t, "image/jpeg", DetectMIME([]byte("\xff\xd8\xff\xe0")))
	assert.Equal(t, "application/pdf", DetectMIME([]byte("%PDF-1.7")))
	assert.Equal(t, "image/jpeg", DetectMIME([]byte("plain text")))
}
