package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"lan-chat/internal/models"
)

// AttachmentRepository records uploaded files.
type AttachmentRepository interface {
	Save(ctx context.Context, a models.Attachment) (models.Attachment, error)
}

// AttachmentRepo is a sqlx-backed AttachmentRepository.
type AttachmentRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewAttachmentRepo constructs an AttachmentRepo.
func NewAttachmentRepo(db *sqlx.DB, opts ...Option) *AttachmentRepo {
	return &AttachmentRepo{db: db, now: newPolicy(opts).now}
}

// Save inserts the record and returns it with id and timestamp.
func (r *AttachmentRepo) Save(ctx context.Context, a models.Attachment) (models.Attachment, error) {
	a.CreatedAt = r.now().UTC()
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`INSERT INTO attachments (uploader_id, url, original_name, mime_type, size, created_at)
        VALUES (?, ?, ?, ?, ?, ?) RETURNING id`), a.UploaderID, a.URL, a.OriginalName, a.MimeType, a.Size, a.CreatedAt).Scan(&a.ID)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("save attachment: %w", err)
	}
	return a, nil
}
