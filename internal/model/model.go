// Package model holds the persistent entities of the calendaring backend.
//
// Cyclic navigation (Event<->User, Calendar<->Event) is expressed through
// foreign-key columns and the user_events join table; callers navigate via
// explicit queries instead of embedded back-references.
package model

import "time"

// Event statuses.
const (
	StatusConfirmed   = "confirmed"
	StatusTentative   = "tentative"
	StatusCancelled   = "cancelled"
	StatusNeedsAction = "needs-action"
	StatusCompleted   = "completed"
)

// Notification channel types. "both" fans out to email and whatsapp.
const (
	NotifyNone     = "none"
	NotifyEmail    = "email"
	NotifyWhatsapp = "whatsapp"
	NotifyBoth     = "both"
)

// User is a registered account. Email doubles as the CalDAV principal name.
type User struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Name        string  `json:"name"`
	Email       string  `json:"email" gorm:"uniqueIndex;not null"`
	Password    string  `json:"-" gorm:"not null"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	ProfileID   *uint   `json:"profile_id,omitempty"`

	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	Events []Event `json:"events,omitempty" gorm:"many2many:user_events"`
}

// UserProfile groups permissions into a role.
type UserProfile struct {
	ID          uint         `json:"id" gorm:"primaryKey"`
	Name        string       `json:"name" gorm:"not null"`
	Permissions []Permission `json:"permissions,omitempty" gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE"`
}

// Permission is a per-entity capability record scoped to a profile.
type Permission struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	ProfileID uint   `json:"profile_id" gorm:"index;not null"`
	Entity    string `json:"entity" gorm:"not null"`
	CanView   bool   `json:"can_view"`
	CanCreate bool   `json:"can_create"`
	CanUpdate bool   `json:"can_update"`
	CanDelete bool   `json:"can_delete"`
}

// Calendar owns a collection of events and carries the notification defaults
// an event inherits when its own override fields are unset.
type Calendar struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Visible     bool   `json:"visible" gorm:"default:true"`
	IsPrivate   bool   `json:"is_private"`
	Description string `json:"description"`
	OwnerID     *uint  `json:"owner_id,omitempty"`

	NotificationType     string `json:"notification_type"`
	NotifyBeforeMinutes  int    `json:"notify_before_minutes"`
	NotifyRepeats        int    `json:"notify_repeats"`
	NotificationTemplate string `json:"notification_template"`

	Events []Event `json:"events,omitempty" gorm:"foreignKey:CalendarID;constraint:OnDelete:CASCADE"`
}

// Event is a single event or the anchor record of a recurring series.
// When RecurringRule is set, Date is the series anchor and the rule text is
// owned exclusively by the recurrence engine. IsTask marks VTODO resources
// on the CalDAV surface.
type Event struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	UID         string     `json:"uid" gorm:"uniqueIndex"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Date        time.Time  `json:"date" gorm:"index;not null"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	IsAllDay    bool       `json:"isAllDay"`
	IsTask      bool       `json:"is_task"`
	StartTime   string     `json:"startTime"`
	EndTime     string     `json:"endTime"`
	Color       string     `json:"color"`
	Location    string     `json:"location"`
	Status      string     `json:"status" gorm:"default:confirmed"`

	// RecurringRule holds the canonical rule form described in
	// internal/recurrence (RRULE line plus optional EXDATE lines).
	RecurringRule *string `json:"recurring_rule,omitempty"`

	CalendarID uint  `json:"calendar_id" gorm:"index;not null"`
	CreatedBy  *uint `json:"created_by,omitempty"`

	// Per-event notification overrides; nil inherits the calendar default.
	NotificationType     *string `json:"notification_type,omitempty"`
	NotifyBeforeMinutes  *int    `json:"notify_before_minutes,omitempty"`
	NotifyRepeats        *int    `json:"notify_repeats,omitempty"`
	NotificationTemplate *string `json:"notification_template,omitempty"`

	RemindersSent int `json:"reminders_sent"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Users []User `json:"users,omitempty" gorm:"many2many:user_events"`
}

// NotificationLog records one dispatch attempt. Rows are append-only; only
// IsRead may change afterwards, through the owning user's acknowledgement.
type NotificationLog struct {
	ID      uint   `json:"id" gorm:"primaryKey"`
	UserID  uint   `json:"user_id" gorm:"index;not null"`
	EventID *uint  `json:"event_id,omitempty" gorm:"index"`
	Channel string `json:"channel" gorm:"not null"`
	Status  string `json:"status" gorm:"default:sent"`
	Content string `json:"content" gorm:"not null"`
	IsRead  bool   `json:"is_read"`

	CreatedAt time.Time `json:"created_at"`
}

// Log statuses.
const (
	LogSent   = "sent"
	LogFailed = "failed"
)
