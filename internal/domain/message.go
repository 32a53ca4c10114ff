package domain

import (
	"encoding/json"
	"time"
)

// Message is one mirrored mail, unique on (AccountID, UID, Folder).
// Messages are append-only from the sync engine's perspective; the
// external API may only mutate IsRead and DeletedAt.
type Message struct {
	ID        string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AccountID string `json:"accountId" gorm:"type:varchar(36);uniqueIndex:idx_account_uid_folder;index;not null"`
	UID       int    `json:"uid" gorm:"uniqueIndex:idx_account_uid_folder;not null"`
	Folder    string `json:"folder" gorm:"type:varchar(100);uniqueIndex:idx_account_uid_folder;not null"`

	// MessageID is the upstream Message-ID / internetMessageId, opaque
	// and nullable — never used for identity, only display.
	MessageID string `json:"messageId,omitempty" gorm:"type:varchar(998)"`

	From    string `json:"from" gorm:"type:varchar(500)"`
	To      string `json:"to" gorm:"type:text"` // JSON array of recipient strings
	Subject string `json:"subject" gorm:"type:varchar(998)"`
	Body    string `json:"body" gorm:"type:text"`
	HTMLBody string `json:"htmlBody,omitempty" gorm:"type:text"`

	IsRead bool `json:"isRead" gorm:"default:false;index"`

	ReceivedAt time.Time  `json:"receivedAt" gorm:"index"`
	FetchedAt  time.Time  `json:"fetchedAt"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty" gorm:"index"`

	CreatedAt time.Time `json:"createdAt" gorm:"index"`

	Attachments []*Attachment `json:"attachments,omitempty" gorm:"-"`
}

// ToList returns the To field decoded to a slice of addresses.
func (m *Message) ToList() []string {
	if m.To == "" {
		return nil
	}
	var addrs []string
	if err := json.Unmarshal([]byte(m.To), &addrs); err != nil {
		return nil
	}
	return addrs
}

// EncodeToList serializes a recipient list into the Message.To column
// format (a JSON array, so addresses may safely contain commas).
func EncodeToList(addrs []string) string {
	if len(addrs) == 0 {
		return ""
	}
	data, err := json.Marshal(addrs)
	if err != nil {
		return ""
	}
	return string(data)
}
