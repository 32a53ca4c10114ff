package domain

import "time"

// User is the owner of zero or more MailAccounts. The core never
// deletes a User; account lifecycle is independent of login lifecycle.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email        string    `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255)"`
	ExternalID   string    `json:"externalId,omitempty" gorm:"type:varchar(255);index"`
	CreatedAt    time.Time `json:"createdAt"`
}
