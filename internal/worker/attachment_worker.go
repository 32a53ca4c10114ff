package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mailmirror/core/internal/attachment"
	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/store"
)

// AttachmentUploadHandler returns the Handler for
// domain.QueueAttachmentUpload: unmarshal the payload, hand the bytes
// to the uploader, and record the returned URL on the attachment's
// mirrored metadata (§4.4).
func AttachmentUploadHandler(up attachment.Uploader, attachments store.AttachmentStore) Handler {
	return func(ctx context.Context, job *domain.Job) error {
		var payload domain.AttachmentUploadPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshaling attachment-upload payload: %w", err)
		}

		url, err := up.Upload(ctx, payload.ContentType, payload.Filename, payload.Bytes)
		if err != nil {
			return fmt.Errorf("uploading attachment: %w", err)
		}

		return attachments.SaveAttachmentMeta(ctx, &domain.Attachment{
			MessageID:   payload.MessageID,
			Filename:    payload.Filename,
			ContentType: payload.ContentType,
			Size:        int64(len(payload.Bytes)),
			StorageURL:  url,
		})
	}
}
