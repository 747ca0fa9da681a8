package caldav

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"agenda/internal/event"
	"agenda/internal/model"
	"agenda/internal/store"
)

// Bridge maps CalDAV resources onto the calendaring store. All event writes
// go through the lifecycle manager so CalDAV and the JSON API share one set
// of semantics.
type Bridge struct {
	db     *gorm.DB
	events *event.Manager
}

// NewBridge wires the bridge over the store and event manager.
func NewBridge(db *gorm.DB, events *event.Manager) *Bridge {
	return &Bridge{db: db, events: events}
}

// AuthUser verifies basic-auth credentials against the stored bcrypt hash.
func (b *Bridge) AuthUser(ctx context.Context, email, password string) (*model.User, error) {
	var u model.User
	if err := b.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, fmt.Errorf("user %q: %w", email, store.Translate(err))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return nil, fmt.Errorf("user %q: %w", email, store.ErrValidation)
	}
	return &u, nil
}

// UserCalendars lists the calendars owned by the user.
func (b *Bridge) UserCalendars(ctx context.Context, ownerID uint) ([]model.Calendar, error) {
	var cals []model.Calendar
	err := b.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("name").Find(&cals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", store.Translate(err))
	}
	return cals, nil
}

// CalendarByName finds one of the user's calendars by collection name.
func (b *Bridge) CalendarByName(ctx context.Context, ownerID uint, name string) (*model.Calendar, error) {
	var cal model.Calendar
	err := b.db.WithContext(ctx).Where("owner_id = ? AND name = ?", ownerID, name).First(&cal).Error
	if err != nil {
		return nil, fmt.Errorf("calendar %q: %w", name, store.Translate(err))
	}
	return &cal, nil
}

// CreateCalendar creates a collection with the defaults a MKCALENDAR
// request implies: private, visible, blue.
func (b *Bridge) CreateCalendar(ctx context.Context, ownerID uint, name string) (*model.Calendar, error) {
	cal := model.Calendar{
		Name:        name,
		Description: "Calendar " + name,
		Color:       "#0000FF",
		Visible:     true,
		IsPrivate:   true,
		OwnerID:     &ownerID,
	}
	if err := b.db.WithContext(ctx).Create(&cal).Error; err != nil {
		return nil, fmt.Errorf("failed to create calendar %q: %w", name, store.Translate(err))
	}
	return &cal, nil
}

// CalendarEvents lists all objects in a collection.
func (b *Bridge) CalendarEvents(ctx context.Context, calendarID uint) ([]model.Event, error) {
	var events []model.Event
	err := b.db.WithContext(ctx).Where("calendar_id = ?", calendarID).Order("date").Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar objects: %w", store.Translate(err))
	}
	return events, nil
}

// ObjectByUID resolves an object resource to its event record.
func (b *Bridge) ObjectByUID(ctx context.Context, uid string) (*model.Event, error) {
	return b.events.GetByUID(ctx, uid)
}

// PutObject creates or updates the event keyed by the resource uid with the
// uploaded payload. The uploading user becomes the default participant on
// create. Returns the stored event and whether it was created.
func (b *Bridge) PutObject(ctx context.Context, user *model.User, cal *model.Calendar, uid string, data *ObjectData) (*model.Event, bool, error) {
	// The uploaded document is the object's full state, so a missing
	// recurrence rule clears any stored one.
	rule := data.Rule
	if rule == nil {
		empty := ""
		rule = &empty
	}

	existing, err := b.events.GetByUID(ctx, uid)
	switch {
	case err == nil:
		updated, err := b.events.Update(ctx, existing.ID, event.UpdatePayload{
			Title:         &data.Title,
			Description:   &data.Description,
			Date:          &data.Date,
			EndDate:       data.EndDate,
			IsAllDay:      &data.AllDay,
			IsTask:        &data.IsTask,
			Location:      &data.Location,
			Status:        &data.Status,
			RecurringRule: rule,
		})
		return updated, false, err

	case errors.Is(err, store.ErrNotFound):
		created, err := b.events.Create(ctx, event.CreatePayload{
			UID:           uid,
			Title:         data.Title,
			Description:   data.Description,
			Date:          data.Date,
			EndDate:       data.EndDate,
			IsAllDay:      data.AllDay,
			IsTask:        data.IsTask,
			Location:      data.Location,
			Status:        data.Status,
			RecurringRule: data.Rule,
			CalendarID:    cal.ID,
			CreatedBy:     &user.ID,
			UserIDs:       []uint{user.ID},
		})
		return created, true, err

	default:
		return nil, false, err
	}
}

// DeleteObject removes the event behind an object resource.
func (b *Bridge) DeleteObject(ctx context.Context, uid string) (*model.Event, error) {
	ev, err := b.events.GetByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	return b.events.Remove(ctx, ev.ID)
}

// EventsInRange exposes the manager's half-open range query for REPORT
// time-range filters.
func (b *Bridge) EventsInRange(ctx context.Context, calendarID uint, start, end time.Time) ([]model.Event, error) {
	return b.events.EventsInRange(ctx, calendarID, start, end)
}
