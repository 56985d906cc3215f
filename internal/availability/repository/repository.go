package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	availabilitydomain "github.com/slotline/slotline/internal/availability/domain"
	"github.com/slotline/slotline/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() availabilitydomain.Repository {
	return &repo{}
}

func (r *repo) FindSlots(ctx context.Context, db *gorm.DB, req availabilitydomain.FindSlotsRequest, limit int) ([]*availabilitydomain.Slot, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT
		cs.id AS session_id,
		cs.studio_id,
		cs.location_id,
		l.name AS location_name,
		cs.class_type_id,
		ct.name AS class_type_name,
		cs.instructor_id,
		i.display_name AS instructor_name,
		cs.starts_at,
		cs.ends_at,
		ct.duration_min,
		ct.price_amount,
		ct.currency,
		cs.capacity - cs.booked_count AS spots_left,
		cs.status
	FROM class_sessions cs
	JOIN class_types ct ON ct.id = cs.class_type_id
	JOIN locations l ON l.id = cs.location_id
	JOIN instructors i ON i.id = cs.instructor_id
	WHERE cs.studio_id = ? AND cs.status = ?`)
	args := []any{req.StudioID, availabilitydomain.SessionStatusScheduled}

	if req.LocationID != nil {
		sb.WriteString(" AND cs.location_id = ?")
		args = append(args, *req.LocationID)
	}
	if req.ClassTypeID != nil {
		sb.WriteString(" AND cs.class_type_id = ?")
		args = append(args, *req.ClassTypeID)
	}
	if req.InstructorID != nil {
		sb.WriteString(" AND cs.instructor_id = ?")
		args = append(args, *req.InstructorID)
	}
	if req.From != nil {
		sb.WriteString(" AND cs.starts_at >= ?")
		args = append(args, req.From.UTC())
	}
	if req.To != nil {
		sb.WriteString(" AND cs.starts_at < ?")
		args = append(args, req.To.UTC())
	}
	if !req.IncludeFull {
		sb.WriteString(" AND cs.booked_count < cs.capacity")
	}

	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, availabilitydomain.ErrInvalidSlotQuery
		}
		startsAt, err := time.Parse(time.RFC3339Nano, cursor.StartsAt)
		if err != nil {
			return nil, availabilitydomain.ErrInvalidSlotQuery
		}
		sb.WriteString(" AND (cs.starts_at > ? OR (cs.starts_at = ? AND cs.id > ?))")
		args = append(args, startsAt, startsAt, cursor.ID)
	}

	sb.WriteString(" ORDER BY cs.starts_at ASC, cs.id ASC LIMIT ?")
	args = append(args, limit)

	var slots []*availabilitydomain.Slot
	if err := db.WithContext(ctx).Raw(sb.String(), args...).Scan(&slots).Error; err != nil {
		return nil, err
	}
	return slots, nil
}

func (r *repo) FindSession(ctx context.Context, db *gorm.DB, id snowflake.ID) (*availabilitydomain.ClassSession, error) {
	var session availabilitydomain.ClassSession
	err := db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, availabilitydomain.ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *repo) ClaimSeat(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE class_sessions
		SET booked_count = booked_count + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ? AND booked_count < capacity`,
		sessionID,
		availabilitydomain.SessionStatusScheduled,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return availabilitydomain.ErrSessionFull
	}
	return nil
}

func (r *repo) ReleaseSeat(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE class_sessions
		SET booked_count = booked_count - 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND booked_count > 0`,
		sessionID,
	).Error
}

func (r *repo) CompletePastSessions(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE class_sessions
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id IN (
			SELECT id FROM class_sessions
			WHERE status = ? AND ends_at < ?
			ORDER BY ends_at ASC
			LIMIT ?
		)`,
		availabilitydomain.SessionStatusCompleted,
		availabilitydomain.SessionStatusScheduled,
		cutoff.UTC(),
		limit,
	)
	return result.RowsAffected, result.Error
}
