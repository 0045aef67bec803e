package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Meal is a vendor listing with a finite number of portions and a pickup window.
type Meal struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	VendorID          uuid.UUID       `gorm:"column:vendor_id;type:uuid;not null" json:"vendor_id"`
	Name              string          `gorm:"column:name;not null" json:"name"`
	Description       *string         `gorm:"column:description" json:"description,omitempty"`
	Price             decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	Quantity          int             `gorm:"column:quantity;not null" json:"quantity"`
	PickupStartTime   time.Time       `gorm:"column:pickup_start_time;not null" json:"pickup_start_time"`
	PickupEndTime     time.Time       `gorm:"column:pickup_end_time;not null" json:"pickup_end_time"`
	LocationAddress   *string         `gorm:"column:location_address" json:"location_address,omitempty"`
	LocationLatitude  *float64        `gorm:"column:location_latitude" json:"location_latitude,omitempty"`
	LocationLongitude *float64        `gorm:"column:location_longitude" json:"location_longitude,omitempty"`
	IsActive          bool            `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
