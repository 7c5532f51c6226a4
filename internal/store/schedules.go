package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/skatamatic/blulok-cloud/internal/domain"
)

// ScheduleStore resolves user-facility schedule bindings and their windows.
type ScheduleStore struct {
	pool *Pool
}

// NewScheduleStore creates a ScheduleStore.
func NewScheduleStore(pool *Pool) *ScheduleStore {
	return &ScheduleStore{pool: pool}
}

// ErrNoSchedule is returned when a user has no schedule bound for a facility.
var ErrNoSchedule = errors.New("no schedule bound")

// ForUserFacility returns the schedule bound to a user for a given facility,
// or ErrNoSchedule if none is bound or the bound schedule has no windows.
func (s *ScheduleStore) ForUserFacility(ctx context.Context, userID, facilityID string) (*domain.Schedule, error) {
	var scheduleID string
	err := s.pool.QueryRow(ctx,
		`SELECT schedule_id FROM user_facility_schedules WHERE user_id = $1 AND facility_id = $2`,
		userID, facilityID,
	).Scan(&scheduleID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSchedule
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user_facility_schedule: %w", err)
	}

	sched, err := s.byID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if len(sched.TimeWindows) == 0 {
		return nil, ErrNoSchedule
	}
	return sched, nil
}

func (s *ScheduleStore) byID(ctx context.Context, id string) (*domain.Schedule, error) {
	var sched domain.Schedule
	err := s.pool.QueryRow(ctx,
		`SELECT id, facility_id, name, kind FROM schedules WHERE id = $1`, id,
	).Scan(&sched.ID, &sched.FacilityID, &sched.Name, &sched.Kind)
	if err != nil {
		return nil, fmt.Errorf("looking up schedule %s: %w", id, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT day_of_week, start_time, end_time FROM schedule_time_windows WHERE schedule_id = $1`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("listing time windows for schedule %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var w domain.TimeWindow
		if err := rows.Scan(&w.DayOfWeek, &w.Start, &w.End); err != nil {
			return nil, fmt.Errorf("scanning time window: %w", err)
		}
		sched.TimeWindows = append(sched.TimeWindows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &sched, nil
}
