package entities

import "github.com/google/uuid"

// User is the record owner as this subsystem sees it: wallet addresses
// for heuristic matching plus configured notification channels.
// Read-only here.
type User struct {
	ID              uuid.UUID `db:"id" json:"id"`
	WalletAddresses []string  `db:"-" json:"wallet_addresses"`
	TelegramChatID  *int64    `db:"telegram_chat_id" json:"telegram_chat_id,omitempty"`
	Email           *string   `db:"email" json:"email,omitempty"`
}

// HasNotificationChannel reports whether any channel is configured
func (u *User) HasNotificationChannel() bool {
	return u.TelegramChatID != nil || (u.Email != nil && *u.Email != "")
}
