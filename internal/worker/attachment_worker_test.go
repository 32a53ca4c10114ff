package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/store/memory"
)

type fakeUploader struct {
	url string
	err error
}

func (f *fakeUploader) Upload(ctx context.Context, contentType, filename string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func TestAttachmentUploadHandlerPersistsStorageURL(t *testing.T) {
	store := memory.New()
	uploader := &fakeUploader{url: "file://2026-01-01/report.pdf"}

	payload, err := json.Marshal(domain.AttachmentUploadPayload{
		MessageID:   "msg1",
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		Bytes:       []byte("pdf-bytes"),
	})
	require.NoError(t, err)

	handler := AttachmentUploadHandler(uploader, store)
	err = handler(context.Background(), &domain.Job{Payload: payload})
	require.NoError(t, err)

	attachments, err := store.ListAttachments(context.Background(), "msg1")
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	assert.Equal(t, "file://2026-01-01/report.pdf", attachments[0].StorageURL)
	assert.Equal(t, int64(len("pdf-bytes")), attachments[0].Size)
}

func TestAttachmentUploadHandlerPropagatesUploadError(t *testing.T) {
	store := memory.New()
	uploader := &fakeUploader{err: errors.New("storage unavailable")}

	payload, _ := json.Marshal(domain.AttachmentUploadPayload{MessageID: "msg1", Filename: "a.txt"})
	handler := AttachmentUploadHandler(uploader, store)
	err := handler(context.Background(), &domain.Job{Payload: payload})

	assert.Error(t, err)

	attachments, listErr := store.ListAttachments(context.Background(), "msg1")
	require.NoError(t, listErr)
	assert.Empty(t, attachments)
}
