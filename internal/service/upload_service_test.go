package service

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {"form-data; name=\"file\"; filename=\"" + filename + "\""},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	files := form.File["file"]
	require.Len(t, files, 1)
	return files[0]
}

func TestUploadRoundTrip(t *testing.T) {
	svc := NewUploadService(t.TempDir(), 5, testLogger())

	content := []byte("Name: Eve Adams\nQ1: What is TCP?\nA transport protocol.")
	resp, err := svc.Upload(context.Background(), buildFileHeader(t, "homework.txt", content))
	require.NoError(t, err)
	require.NotEmpty(t, resp.FileID)
	require.Equal(t, "homework.txt", resp.Filename)
	require.Equal(t, "Eve Adams", resp.StudentName)

	stored, err := svc.Get(context.Background(), resp.FileID)
	require.NoError(t, err)
	require.Equal(t, "homework.txt", stored.Filename)
	require.Contains(t, stored.Text, "What is TCP?")
	require.Equal(t, "Eve Adams", stored.StudentName)
	require.Equal(t, content, stored.Raw)
}

func TestUploadRejectsSize(t *testing.T) {
	svc := NewUploadService(t.TempDir(), 1, testLogger())

	file := buildFileHeader(t, "big.txt", bytes.Repeat([]byte("a"), 2*1024*1024))
	_, err := svc.Upload(context.Background(), file)
	require.ErrorIs(t, err, ErrUploadTooLarge)
}

func TestUploadRejectsBinary(t *testing.T) {
	svc := NewUploadService(t.TempDir(), 5, testLogger())

	// Zip magic bytes: not text, not an image.
	file := buildFileHeader(t, "archive.zip", []byte{0x50, 0x4B, 0x03, 0x04, 0x00, 0x00})
	_, err := svc.Upload(context.Background(), file)
	require.ErrorIs(t, err, ErrUploadNotText)
}

func TestUploadKeepsImagesForDesignReview(t *testing.T) {
	svc := NewUploadService(t.TempDir(), 5, testLogger())

	pngHeader := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	resp, err := svc.Upload(context.Background(), buildFileHeader(t, "slide.png", pngHeader))
	require.NoError(t, err)
	require.Equal(t, "image", resp.FileType)

	stored, err := svc.Get(context.Background(), resp.FileID)
	require.NoError(t, err)
	require.Equal(t, "image", stored.FileType)
	require.Empty(t, stored.Text)
}

func TestGetUnknownFile(t *testing.T) {
	svc := NewUploadService(t.TempDir(), 5, testLogger())

	_, err := svc.Get(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, ErrUploadNotFound)
}
