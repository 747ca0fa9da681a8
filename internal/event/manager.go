// Package event orchestrates the event lifecycle: creation with calendar
// inheritance, series-aware updates, participant association and filtered
// listing. All multi-step writes commit atomically.
package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agenda/internal/filter"
	"agenda/internal/model"
	"agenda/internal/recurrence"
	"agenda/internal/store"
)

// Manager owns event persistence. Updates that target a recurring series
// with a this/future edit mode are delegated to the recurrence engine.
type Manager struct {
	db       *gorm.DB
	compiler *filter.Compiler
	log      *slog.Logger
}

// NewManager wires a manager over the store and filter compiler.
func NewManager(db *gorm.DB, compiler *filter.Compiler, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{db: db, compiler: compiler, log: log}
}

// Get loads one event with its participants.
func (m *Manager) Get(ctx context.Context, id uint) (*model.Event, error) {
	var ev model.Event
	err := m.db.WithContext(ctx).Preload("Users").First(&ev, id).Error
	if err != nil {
		return nil, fmt.Errorf("event %d: %w", id, store.Translate(err))
	}
	return &ev, nil
}

// GetByUID loads one event by its external uid.
func (m *Manager) GetByUID(ctx context.Context, uid string) (*model.Event, error) {
	var ev model.Event
	err := m.db.WithContext(ctx).Preload("Users").Where("uid = ?", uid).First(&ev).Error
	if err != nil {
		return nil, fmt.Errorf("event %q: %w", uid, store.Translate(err))
	}
	return &ev, nil
}

// Create validates the target calendar, inherits its notification defaults
// and color for unset fields, resolves the participant list all-or-nothing
// and persists everything in one transaction.
func (m *Manager) Create(ctx context.Context, p CreatePayload) (*model.Event, error) {
	var cal model.Calendar
	if err := m.db.WithContext(ctx).First(&cal, p.CalendarID).Error; err != nil {
		return nil, fmt.Errorf("calendar %d: %w", p.CalendarID, store.Translate(err))
	}

	uid := p.UID
	if uid == "" {
		uid = uuid.NewString()
	}

	ev := model.Event{
		UID:         uid,
		Title:       p.Title,
		Description: p.Description,
		Date:        p.Date,
		EndDate:     p.EndDate,
		IsAllDay:    p.IsAllDay,
		IsTask:      p.IsTask,
		StartTime:   p.StartTime,
		EndTime:     p.EndTime,
		Color:       p.Color,
		Location:    p.Location,
		Status:      p.Status,
		CalendarID:  cal.ID,
		CreatedBy:   p.CreatedBy,

		NotificationType:     p.NotificationType,
		NotifyBeforeMinutes:  p.NotifyBeforeMinutes,
		NotifyRepeats:        p.NotifyRepeats,
		NotificationTemplate: p.NotificationTemplate,
	}
	if ev.Status == "" {
		ev.Status = model.StatusConfirmed
	}
	if p.RecurringRule != nil && *p.RecurringRule != "" {
		rule, err := recurrence.Parse(*p.RecurringRule)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
		}
		s := rule.String()
		ev.RecurringRule = &s
	}

	// Field-level inheritance from the owning calendar.
	if ev.Color == "" {
		ev.Color = cal.Color
	}
	if ev.NotificationType == nil && cal.NotificationType != "" {
		v := cal.NotificationType
		ev.NotificationType = &v
	}
	if ev.NotifyBeforeMinutes == nil && cal.NotifyBeforeMinutes != 0 {
		v := cal.NotifyBeforeMinutes
		ev.NotifyBeforeMinutes = &v
	}
	if ev.NotifyRepeats == nil && cal.NotifyRepeats != 0 {
		v := cal.NotifyRepeats
		ev.NotifyRepeats = &v
	}
	if ev.NotificationTemplate == nil && cal.NotificationTemplate != "" {
		v := cal.NotificationTemplate
		ev.NotificationTemplate = &v
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Users").Create(&ev).Error; err != nil {
			return fmt.Errorf("failed to create event: %w", store.Translate(err))
		}
		if len(p.UserIDs) > 0 {
			return m.replaceParticipants(tx, &ev, p.UserIDs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.Get(ctx, ev.ID)
}

// Update applies a partial update. Recurring events with edit mode future or
// this are split through the recurrence engine; everything else is a plain
// field merge. The returned record always has participants freshly loaded.
func (m *Manager) Update(ctx context.Context, id uint, p UpdatePayload) (*model.Event, error) {
	if !p.EditMode.Valid() {
		return nil, fmt.Errorf("%w: unknown edit mode %q", store.ErrValidation, p.EditMode)
	}

	existing, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	recurring := existing.RecurringRule != nil && *existing.RecurringRule != ""
	splitting := recurring && (p.EditMode == recurrence.EditFuture || p.EditMode == recurrence.EditThis)

	if !splitting {
		return m.mergeUpdate(ctx, existing, p)
	}
	if p.OccurrenceDate == nil {
		return nil, fmt.Errorf("%w: edit mode %q requires occurrence_date", store.ErrValidation, p.EditMode)
	}
	return m.splitSeries(ctx, existing, p)
}

// mergeUpdate overlays the payload's present fields onto the record and
// optionally replaces participants, in one transaction.
func (m *Manager) mergeUpdate(ctx context.Context, ev *model.Event, p UpdatePayload) (*model.Event, error) {
	if err := m.overlay(ev, p); err != nil {
		return nil, err
	}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Users").Save(ev).Error; err != nil {
			return fmt.Errorf("failed to update event %d: %w", ev.ID, store.Translate(err))
		}
		if p.UserIDs != nil {
			return m.replaceParticipants(tx, ev, *p.UserIDs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.Get(ctx, ev.ID)
}

// splitSeries performs the two-step series split atomically: mutate the
// original series' rule, then materialize the detached event record.
func (m *Manager) splitSeries(ctx context.Context, orig *model.Event, p UpdatePayload) (*model.Event, error) {
	occurrence := *p.OccurrenceDate

	plan, err := recurrence.PlanSplit(*orig.RecurringRule, orig.Date, p.EditMode, occurrence, p.RecurringRule)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	// The detached record copies the series and takes the update overlay,
	// a fresh identity and its own rule.
	detached := *orig
	detached.ID = 0
	detached.UID = uuid.NewString()
	detached.Users = nil
	detached.RemindersSent = 0
	detached.CreatedAt = time.Time{}
	detached.UpdatedAt = time.Time{}
	if err := m.overlay(&detached, p); err != nil {
		return nil, err
	}
	detached.Date = occurrence
	detached.RecurringRule = plan.NewRule

	// Participants for the new record: the update's list, else the series'
	// current set.
	userIDs := make([]uint, 0, len(orig.Users))
	for _, u := range orig.Users {
		userIDs = append(userIDs, u.ID)
	}
	if p.UserIDs != nil {
		userIDs = *p.UserIDs
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Event{}).Where("id = ?", orig.ID).
			Update("recurring_rule", plan.OriginalRule).Error; err != nil {
			return fmt.Errorf("failed to mutate series %d: %w", orig.ID, store.Translate(err))
		}
		if err := tx.Omit("Users").Create(&detached).Error; err != nil {
			return fmt.Errorf("failed to materialize occurrence: %w", store.Translate(err))
		}
		return m.replaceParticipants(tx, &detached, userIDs)
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("series split",
		"series_id", orig.ID,
		"mode", p.EditMode,
		"occurrence", occurrence,
		"new_id", detached.ID)
	return m.Get(ctx, detached.ID)
}

// overlay copies the payload's present fields onto ev. A provided
// recurring rule is normalized to the canonical serialization; an empty
// string clears it.
func (m *Manager) overlay(ev *model.Event, p UpdatePayload) error {
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.Date != nil {
		ev.Date = *p.Date
	}
	if p.EndDate != nil {
		ev.EndDate = p.EndDate
	}
	if p.IsAllDay != nil {
		ev.IsAllDay = *p.IsAllDay
	}
	if p.IsTask != nil {
		ev.IsTask = *p.IsTask
	}
	if p.StartTime != nil {
		ev.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		ev.EndTime = *p.EndTime
	}
	if p.Color != nil {
		ev.Color = *p.Color
	}
	if p.Location != nil {
		ev.Location = *p.Location
	}
	if p.Status != nil {
		ev.Status = *p.Status
	}
	if p.CalendarID != nil {
		ev.CalendarID = *p.CalendarID
	}
	if p.NotificationType != nil {
		ev.NotificationType = p.NotificationType
	}
	if p.NotifyBeforeMinutes != nil {
		ev.NotifyBeforeMinutes = p.NotifyBeforeMinutes
	}
	if p.NotifyRepeats != nil {
		ev.NotifyRepeats = p.NotifyRepeats
	}
	if p.NotificationTemplate != nil {
		ev.NotificationTemplate = p.NotificationTemplate
	}
	if p.RecurringRule != nil && p.EditMode != recurrence.EditFuture && p.EditMode != recurrence.EditThis {
		if *p.RecurringRule == "" {
			ev.RecurringRule = nil
		} else {
			rule, err := recurrence.Parse(*p.RecurringRule)
			if err != nil {
				return fmt.Errorf("%w: %v", store.ErrValidation, err)
			}
			s := rule.String()
			ev.RecurringRule = &s
		}
	}
	return nil
}

// replaceParticipants resolves ids to user records and replaces the event's
// full participant set. Any unresolved id fails the whole association.
func (m *Manager) replaceParticipants(tx *gorm.DB, ev *model.Event, userIDs []uint) error {
	var users []model.User
	if len(userIDs) > 0 {
		if err := tx.Where("id IN ?", userIDs).Find(&users).Error; err != nil {
			return fmt.Errorf("failed to resolve participants: %w", store.Translate(err))
		}
		if len(users) != len(dedupe(userIDs)) {
			return fmt.Errorf("participant resolution: %w", store.ErrNotFound)
		}
	}
	if err := tx.Model(ev).Association("Users").Replace(&users); err != nil {
		return fmt.Errorf("failed to replace participants: %w", store.Translate(err))
	}
	return nil
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Remove deletes the event and its participant associations, returning the
// deleted record.
func (m *Manager) Remove(ctx context.Context, id uint) (*model.Event, error) {
	ev, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	err = m.db.WithContext(ctx).Select(clause.Associations).Delete(ev).Error
	if err != nil {
		return nil, fmt.Errorf("failed to delete event %d: %w", id, store.Translate(err))
	}
	return ev, nil
}

// ListFiltered compiles the filter expression and returns matching events.
// limit <= 0 means unbounded. Joined filters can multiply rows, so results
// are de-duplicated at the query level.
func (m *Manager) ListFiltered(ctx context.Context, filters string, skip, limit int, eager bool) ([]model.Event, error) {
	pred := m.compiler.Compile(filters, "events")

	tx := m.db.WithContext(ctx).Model(&model.Event{})
	tx = pred.Apply(tx)
	if pred.Joined() {
		tx = tx.Distinct("events.*")
	}
	if eager {
		tx = tx.Preload("Users")
	}
	if skip > 0 {
		tx = tx.Offset(skip)
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var events []model.Event
	if err := tx.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list events: %w", store.Translate(err))
	}
	return events, nil
}

// EventsInRange returns the calendar's events with a start in the half-open
// interval [start, end).
func (m *Manager) EventsInRange(ctx context.Context, calendarID uint, start, end time.Time) ([]model.Event, error) {
	var events []model.Event
	err := m.db.WithContext(ctx).
		Where("calendar_id = ? AND date >= ? AND date < ?", calendarID, start, end).
		Order("date").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query range [%s, %s): %w", start, end, store.Translate(err))
	}
	return events, nil
}

// IsNotFound reports whether err denotes a missing record.
func IsNotFound(err error) bool { return errors.Is(err, store.ErrNotFound) }
