package event

import (
	"time"

	"agenda/internal/recurrence"
)

// CreatePayload carries the fields of a new event. Unset notification
// fields and color inherit the owning calendar's defaults.
type CreatePayload struct {
	// UID pins the external identity; empty means "generate one". The
	// CalDAV bridge supplies the resource's uid here on PUT-create.
	UID string `json:"uid"`

	Title       string     `json:"title"`
	Description string     `json:"description"`
	Date        time.Time  `json:"date"`
	EndDate     *time.Time `json:"end_date"`
	IsAllDay    bool       `json:"isAllDay"`
	IsTask      bool       `json:"is_task"`
	StartTime   string     `json:"startTime"`
	EndTime     string     `json:"endTime"`
	Color       string     `json:"color"`
	Location    string     `json:"location"`
	Status      string     `json:"status"`

	RecurringRule *string `json:"recurring_rule"`

	CalendarID uint  `json:"calendar_id"`
	CreatedBy  *uint `json:"created_by"`

	NotificationType     *string `json:"notification_type"`
	NotifyBeforeMinutes  *int    `json:"notify_before_minutes"`
	NotifyRepeats        *int    `json:"notify_repeats"`
	NotificationTemplate *string `json:"notification_template"`

	UserIDs []uint `json:"user_ids"`
}

// UpdatePayload is a partial update: nil fields are left untouched.
// UserIDs follows replace semantics; nil means "do not touch participants",
// an empty list removes all of them.
type UpdatePayload struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Date        *time.Time `json:"date"`
	EndDate     *time.Time `json:"end_date"`
	IsAllDay    *bool      `json:"isAllDay"`
	IsTask      *bool      `json:"is_task"`
	StartTime   *string    `json:"startTime"`
	EndTime     *string    `json:"endTime"`
	Color       *string    `json:"color"`
	Location    *string    `json:"location"`
	Status      *string    `json:"status"`

	RecurringRule *string `json:"recurring_rule"`

	CalendarID *uint `json:"calendar_id"`

	NotificationType     *string `json:"notification_type"`
	NotifyBeforeMinutes  *int    `json:"notify_before_minutes"`
	NotifyRepeats        *int    `json:"notify_repeats"`
	NotificationTemplate *string `json:"notification_template"`

	UserIDs *[]uint `json:"user_ids"`

	// EditMode selects series behavior for recurring events; empty means
	// EditAll. OccurrenceDate is required for EditFuture and EditThis.
	EditMode       recurrence.EditMode `json:"edit_mode"`
	OccurrenceDate *time.Time          `json:"occurrence_date"`
}
