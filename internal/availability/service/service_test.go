package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	availabilitydomain "github.com/slotline/slotline/internal/availability/domain"
	availabilityrepository "github.com/slotline/slotline/internal/availability/repository"
	catalogdomain "github.com/slotline/slotline/internal/catalog/domain"
	"github.com/slotline/slotline/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type availabilityTestEnv struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	repo  availabilitydomain.Repository
	svc   availabilitydomain.Service

	studio     *catalogdomain.Studio
	location   *catalogdomain.Location
	instructor *catalogdomain.Instructor
	classType  *catalogdomain.ClassType
}

func newAvailabilityTestEnv(t *testing.T, name string) *availabilityTestEnv {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), name+".db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&catalogdomain.Studio{},
		&catalogdomain.Location{},
		&catalogdomain.Instructor{},
		&catalogdomain.ClassType{},
		&availabilitydomain.ClassSession{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))

	repo := availabilityrepository.Provide()
	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fake,
		Repo:  repo,
	})

	env := &availabilityTestEnv{
		db:    db,
		node:  node,
		clock: fake,
		repo:  repo,
		svc:   svc,
	}

	env.studio = &catalogdomain.Studio{ID: node.Generate(), Name: "North Loop Yoga", Slug: "north-loop"}
	env.location = &catalogdomain.Location{ID: node.Generate(), StudioID: env.studio.ID, Name: "Main Room", Timezone: "UTC"}
	env.instructor = &catalogdomain.Instructor{ID: node.Generate(), StudioID: env.studio.ID, DisplayName: "Dana Reyes", Active: true}
	env.classType = &catalogdomain.ClassType{
		ID:          node.Generate(),
		StudioID:    env.studio.ID,
		Name:        "Vinyasa Flow",
		DurationMin: 60,
		PriceAmount: 2500,
		Currency:    "USD",
		Active:      true,
	}
	require.NoError(t, db.Create(env.studio).Error)
	require.NoError(t, db.Create(env.location).Error)
	require.NoError(t, db.Create(env.instructor).Error)
	require.NoError(t, db.Create(env.classType).Error)

	return env
}

func (e *availabilityTestEnv) addSession(t *testing.T, startsAt time.Time, capacity, booked int) *availabilitydomain.ClassSession {
	t.Helper()
	session := &availabilitydomain.ClassSession{
		ID:           e.node.Generate(),
		StudioID:     e.studio.ID,
		LocationID:   e.location.ID,
		ClassTypeID:  e.classType.ID,
		InstructorID: e.instructor.ID,
		StartsAt:     startsAt,
		EndsAt:       startsAt.Add(time.Hour),
		Capacity:     capacity,
		BookedCount:  booked,
		Status:       availabilitydomain.SessionStatusScheduled,
	}
	require.NoError(t, e.db.Create(session).Error)
	return session
}

func TestFindSlotsPagesInStartOrder(t *testing.T) {
	env := newAvailabilityTestEnv(t, "slots_paging")
	ctx := context.Background()
	base := env.clock.Now()

	first := env.addSession(t, base.Add(24*time.Hour), 10, 0)
	second := env.addSession(t, base.Add(48*time.Hour), 10, 0)
	third := env.addSession(t, base.Add(72*time.Hour), 10, 0)

	req := availabilitydomain.FindSlotsRequest{StudioID: env.studio.ID}
	req.PageSize = 2
	page, err := env.svc.FindSlots(ctx, req)
	require.NoError(t, err)
	require.Len(t, page.Slots, 2)
	assert.Equal(t, first.ID, page.Slots[0].SessionID)
	assert.Equal(t, second.ID, page.Slots[1].SessionID)
	assert.Equal(t, "Vinyasa Flow", page.Slots[0].ClassTypeName)
	assert.Equal(t, int64(2500), page.Slots[0].PriceAmount)
	assert.Equal(t, 10, page.Slots[0].SpotsLeft)
	require.True(t, page.PageInfo.HasMore)

	req.PageToken = page.PageInfo.NextPageToken
	page, err = env.svc.FindSlots(ctx, req)
	require.NoError(t, err)
	require.Len(t, page.Slots, 1)
	assert.Equal(t, third.ID, page.Slots[0].SessionID)
	assert.False(t, page.PageInfo.HasMore)
}

func TestFindSlotsSkipsFullAndPastSessions(t *testing.T) {
	env := newAvailabilityTestEnv(t, "slots_filtering")
	ctx := context.Background()
	base := env.clock.Now()

	env.addSession(t, base.Add(-2*time.Hour), 10, 0)
	full := env.addSession(t, base.Add(24*time.Hour), 5, 5)
	open := env.addSession(t, base.Add(48*time.Hour), 5, 4)

	page, err := env.svc.FindSlots(ctx, availabilitydomain.FindSlotsRequest{StudioID: env.studio.ID})
	require.NoError(t, err)
	require.Len(t, page.Slots, 1)
	assert.Equal(t, open.ID, page.Slots[0].SessionID)
	assert.Equal(t, 1, page.Slots[0].SpotsLeft)

	page, err = env.svc.FindSlots(ctx, availabilitydomain.FindSlotsRequest{
		StudioID:    env.studio.ID,
		IncludeFull: true,
	})
	require.NoError(t, err)
	require.Len(t, page.Slots, 2)
	assert.Equal(t, full.ID, page.Slots[0].SessionID)
}

func TestFindSlotsUnsatisfiableFiltersReturnEmptyPage(t *testing.T) {
	env := newAvailabilityTestEnv(t, "slots_empty")
	ctx := context.Background()
	base := env.clock.Now()
	env.addSession(t, base.Add(24*time.Hour), 10, 0)

	page, err := env.svc.FindSlots(ctx, availabilitydomain.FindSlotsRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Slots)
	assert.False(t, page.PageInfo.HasMore)

	from := base.Add(72 * time.Hour)
	to := base.Add(24 * time.Hour)
	page, err = env.svc.FindSlots(ctx, availabilitydomain.FindSlotsRequest{
		StudioID: env.studio.ID,
		From:     &from,
		To:       &to,
	})
	require.NoError(t, err)
	assert.Empty(t, page.Slots)

	otherType := env.node.Generate()
	page, err = env.svc.FindSlots(ctx, availabilitydomain.FindSlotsRequest{
		StudioID:    env.studio.ID,
		ClassTypeID: &otherType,
	})
	require.NoError(t, err)
	assert.Empty(t, page.Slots)
}

func TestClaimSeatStopsAtCapacity(t *testing.T) {
	env := newAvailabilityTestEnv(t, "claim_seat")
	ctx := context.Background()
	session := env.addSession(t, env.clock.Now().Add(24*time.Hour), 1, 0)

	require.NoError(t, env.repo.ClaimSeat(ctx, env.db, session.ID))
	err := env.repo.ClaimSeat(ctx, env.db, session.ID)
	require.True(t, errors.Is(err, availabilitydomain.ErrSessionFull))

	require.NoError(t, env.repo.ReleaseSeat(ctx, env.db, session.ID))
	require.NoError(t, env.repo.ClaimSeat(ctx, env.db, session.ID))

	got, err := env.svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.BookedCount)
	assert.Equal(t, 0, got.SpotsLeft())
}

func TestCompletePastSessions(t *testing.T) {
	env := newAvailabilityTestEnv(t, "complete_past")
	ctx := context.Background()
	base := env.clock.Now()

	past := env.addSession(t, base.Add(-3*time.Hour), 10, 2)
	upcoming := env.addSession(t, base.Add(24*time.Hour), 10, 0)

	changed, err := env.repo.CompletePastSessions(ctx, env.db, base, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	got, err := env.svc.GetSession(ctx, past.ID)
	require.NoError(t, err)
	assert.Equal(t, availabilitydomain.SessionStatusCompleted, got.Status)

	got, err = env.svc.GetSession(ctx, upcoming.ID)
	require.NoError(t, err)
	assert.Equal(t, availabilitydomain.SessionStatusScheduled, got.Status)
}
