// Package domain contains persistence models for class sessions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SessionStatus represents lifecycle states for a class session.
type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "SCHEDULED"
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusCanceled  SessionStatus = "CANCELED"
)

// ClassSession is a scheduled occurrence of a class type with fixed capacity.
type ClassSession struct {
	ID           snowflake.ID  `gorm:"primaryKey"`
	StudioID     snowflake.ID  `gorm:"not null;index"`
	LocationID   snowflake.ID  `gorm:"not null;index"`
	ClassTypeID  snowflake.ID  `gorm:"not null;index"`
	InstructorID snowflake.ID  `gorm:"not null;index"`
	StartsAt     time.Time     `gorm:"not null;index"`
	EndsAt       time.Time     `gorm:"not null"`
	Capacity     int           `gorm:"not null"`
	BookedCount  int           `gorm:"not null;default:0"`
	Status       SessionStatus `gorm:"type:text;not null;default:'SCHEDULED'"`
	CreatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ClassSession) TableName() string { return "class_sessions" }

// SpotsLeft reports remaining capacity, never negative.
func (s ClassSession) SpotsLeft() int {
	left := s.Capacity - s.BookedCount
	if left < 0 {
		return 0
	}
	return left
}

// Slot is a bookable session joined with catalog display fields.
type Slot struct {
	SessionID      snowflake.ID  `json:"session_id"`
	StudioID       snowflake.ID  `json:"studio_id"`
	LocationID     snowflake.ID  `json:"location_id"`
	LocationName   string        `json:"location_name"`
	ClassTypeID    snowflake.ID  `json:"class_type_id"`
	ClassTypeName  string        `json:"class_type_name"`
	InstructorID   snowflake.ID  `json:"instructor_id"`
	InstructorName string        `json:"instructor_name"`
	StartsAt       time.Time     `json:"starts_at"`
	EndsAt         time.Time     `json:"ends_at"`
	DurationMin    int           `json:"duration_min"`
	PriceAmount    int64         `json:"price_amount"`
	Currency       string        `json:"currency"`
	SpotsLeft      int           `json:"spots_left"`
	Status         SessionStatus `json:"status"`
}
