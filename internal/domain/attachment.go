package domain

import "time"

// Attachment is created out-of-band by the (out of scope) attachment
// uploader once the sync engine hands it the structural part.
type Attachment struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MessageID   string    `json:"messageId" gorm:"type:varchar(36);index;not null"`
	Filename    string    `json:"filename" gorm:"type:varchar(255)"`
	ContentType string    `json:"contentType" gorm:"type:varchar(100)"`
	Size        int64     `json:"size"`
	ContentID   string    `json:"contentId,omitempty" gorm:"type:varchar(255)"`
	StorageURL  string    `json:"storageUrl,omitempty" gorm:"type:varchar(500)"`
	CreatedAt   time.Time `json:"createdAt"`

	// Bytes is the parsed attachment body, carried only through the
	// in-process hand-off to the uploader — never persisted.
	Bytes []byte `json:"-" gorm:"-"`
}
