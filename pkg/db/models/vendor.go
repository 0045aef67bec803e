package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
)

// Vendor is a food business selling surplus portions through the bot.
type Vendor struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TelegramID   int64              `gorm:"column:telegram_id;not null;uniqueIndex" json:"telegram_id"`
	Name         string             `gorm:"column:name;not null" json:"name"`
	ContactPhone *string            `gorm:"column:contact_phone" json:"contact_phone,omitempty"`
	Status       enums.VendorStatus `gorm:"column:status;type:vendor_status;not null;default:'pending'" json:"status"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// Consumer is an end user buying portions.
type Consumer struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TelegramID int64     `gorm:"column:telegram_id;not null;uniqueIndex" json:"telegram_id"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
