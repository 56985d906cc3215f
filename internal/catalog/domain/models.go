// Package domain contains persistence models for the studio catalog.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Studio is a tenant operating one or more locations.
type Studio struct {
	ID                snowflake.ID `gorm:"primaryKey"`
	Name              string       `gorm:"type:text;not null"`
	Slug              string       `gorm:"type:text;not null;uniqueIndex"`
	Currency          string       `gorm:"type:text;not null;default:'USD'"`
	PaymentsEnabled   bool         `gorm:"not null"`
	MerchantAccountID *string      `gorm:"type:text"`
	CreatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Studio) TableName() string { return "studios" }

// Location is a physical studio site.
type Location struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	StudioID  snowflake.ID `gorm:"not null;index"`
	Name      string       `gorm:"type:text;not null"`
	Timezone  string       `gorm:"type:text;not null;default:'UTC'"`
	Address   *string      `gorm:"type:text"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Location) TableName() string { return "locations" }

// Instructor leads class sessions for a studio.
type Instructor struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	StudioID    snowflake.ID `gorm:"not null;index"`
	DisplayName string       `gorm:"type:text;not null"`
	Active      bool         `gorm:"not null"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Instructor) TableName() string { return "instructors" }

// ClassType is a bookable class offering with a base price in minor units.
type ClassType struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	StudioID    snowflake.ID `gorm:"not null;index"`
	Name        string       `gorm:"type:text;not null"`
	DurationMin int          `gorm:"not null"`
	PriceAmount int64        `gorm:"not null"`
	Currency    string       `gorm:"type:text;not null;default:'USD'"`
	Active      bool         `gorm:"not null"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ClassType) TableName() string { return "class_types" }
