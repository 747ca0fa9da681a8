// Package scheduler runs the periodic reminder job: it scans upcoming and
// overdue events, resolves effective notification settings and dispatches
// reminders through the notification sink.
//
// The reminder budget lives in each event's persisted reminders_sent
// counter, so a restarted scheduler resumes where it left off. Running two
// scheduler instances against one database would double-send reminders;
// deployment is assumed single-instance.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"agenda/internal/model"
	"agenda/internal/notify"
)

const (
	// RepeatInterval separates successive reminders for the same event.
	RepeatInterval = 5 * time.Minute

	// cronSpec is the scan cadence.
	cronSpec = "@every 1m"

	// sendTimeout bounds each outbound delivery call so one slow channel
	// cannot stall the rest of the dispatch.
	sendTimeout = 30 * time.Second

	defaultTemplate = "Reminder: {event_title} at {event_time}"
)

// Scheduler scans events and fires due reminders.
type Scheduler struct {
	db   *gorm.DB
	sink notify.Sink
	log  *slog.Logger
	cron *cron.Cron

	repeatInterval time.Duration
	now            func() time.Time
}

// New creates a scheduler. Start must be called to begin scanning.
func New(db *gorm.DB, sink notify.Sink, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		db:             db,
		sink:           sink,
		log:            log,
		cron:           cron.New(),
		repeatInterval: RepeatInterval,
		now:            time.Now,
	}
}

// Start begins the periodic scan.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(cronSpec, func() {
		if err := s.RunOnce(context.Background()); err != nil {
			s.log.Error("reminder scan failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reminder scan: %w", err)
	}
	s.cron.Start()
	s.log.Info("notification scheduler started", "cadence", cronSpec)
	return nil
}

// Stop halts the scan loop, waiting for a running tick to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunOnce performs a single scan tick. A database error aborts only this
// tick; delivery errors are logged per recipient and never propagate.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	now := s.now()

	var upcoming []model.Event
	if err := s.db.WithContext(ctx).Preload("Users").
		Where("date > ?", now).
		Find(&upcoming).Error; err != nil {
		return fmt.Errorf("failed to scan upcoming events: %w", err)
	}

	var overdue []model.Event
	if err := s.db.WithContext(ctx).Preload("Users").
		Where("date <= ? AND status <> ?", now, model.StatusConfirmed).
		Find(&overdue).Error; err != nil {
		return fmt.Errorf("failed to scan overdue events: %w", err)
	}

	candidates := upcoming
	for _, ev := range overdue {
		if eventEnd(&ev).Before(now) {
			candidates = append(candidates, ev)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	calendars, err := s.loadCalendars(ctx, candidates)
	if err != nil {
		return err
	}

	// Independent dispatch per event; each commits its own counter
	// increment so one event's failure does not affect another's.
	var wg sync.WaitGroup
	for i := range candidates {
		ev := &candidates[i]
		cal, ok := calendars[ev.CalendarID]
		if !ok {
			continue
		}
		eff := resolveSettings(ev, cal)
		if eff.Type == "" || eff.Type == model.NotifyNone {
			continue
		}
		if ev.RemindersSent >= eff.Repeats {
			continue
		}
		due := ev.Date.Add(-time.Duration(eff.LeadMinutes) * time.Minute).
			Add(time.Duration(ev.RemindersSent) * s.repeatInterval)
		if now.Before(due) {
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.dispatch(ctx, ev, eff)
		}()
	}
	wg.Wait()
	return nil
}

// Settings is the per-event result of the field-level override resolution:
// each field takes the event's own value when set, else the calendar's.
type Settings struct {
	Type        string
	LeadMinutes int
	Repeats     int
	Template    string
}

func resolveSettings(ev *model.Event, cal *model.Calendar) Settings {
	eff := Settings{
		Type:        cal.NotificationType,
		LeadMinutes: cal.NotifyBeforeMinutes,
		Repeats:     cal.NotifyRepeats,
		Template:    cal.NotificationTemplate,
	}
	if ev.NotificationType != nil {
		eff.Type = *ev.NotificationType
	}
	if ev.NotifyBeforeMinutes != nil {
		eff.LeadMinutes = *ev.NotifyBeforeMinutes
	}
	if ev.NotifyRepeats != nil {
		eff.Repeats = *ev.NotifyRepeats
	}
	if ev.NotificationTemplate != nil {
		eff.Template = *ev.NotificationTemplate
	}
	if eff.Template == "" {
		eff.Template = defaultTemplate
	}
	return eff
}

// dispatch fires one reminder pass for the event: renders the template,
// attempts every (participant, channel) pair, records a log row per attempt
// and increments the event's counter once.
func (s *Scheduler) dispatch(ctx context.Context, ev *model.Event, eff Settings) {
	content := renderTemplate(eff.Template, ev)

	for i := range ev.Users {
		u := &ev.Users[i]

		if u.Email != "" && (eff.Type == model.NotifyEmail || eff.Type == model.NotifyBoth) {
			err := s.sendBounded(ctx, func(c context.Context) error {
				return s.sink.SendEmail(c, []string{u.Email}, "Reminder: "+ev.Title, content)
			})
			s.recordAttempt(ctx, u.ID, ev.ID, model.NotifyEmail, content, err)
		}

		if u.PhoneNumber != nil && *u.PhoneNumber != "" &&
			(eff.Type == model.NotifyWhatsapp || eff.Type == model.NotifyBoth) {
			err := s.sendBounded(ctx, func(c context.Context) error {
				return s.sink.SendMessage(c, *u.PhoneNumber, content)
			})
			s.recordAttempt(ctx, u.ID, ev.ID, model.NotifyWhatsapp, content, err)
		}
	}

	// One increment per firing pass, in its own transaction.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(&model.Event{}).Where("id = ?", ev.ID).
			UpdateColumn("reminders_sent", gorm.Expr("reminders_sent + 1")).Error
	})
	if err != nil {
		s.log.Error("failed to update reminder counter", "event_id", ev.ID, "error", err)
		return
	}
	s.log.Info("reminder dispatched",
		"event_id", ev.ID,
		"title", ev.Title,
		"pass", ev.RemindersSent+1,
		"participants", len(ev.Users))
}

func (s *Scheduler) sendBounded(ctx context.Context, send func(context.Context) error) error {
	c, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return send(c)
}

// recordAttempt writes one NotificationLog row for a delivery attempt.
func (s *Scheduler) recordAttempt(ctx context.Context, userID, eventID uint, channel, content string, sendErr error) {
	status := model.LogSent
	if sendErr != nil {
		status = model.LogFailed
		s.log.Warn("reminder delivery failed",
			"event_id", eventID,
			"user_id", userID,
			"channel", channel,
			"error", sendErr)
	}
	row := model.NotificationLog{
		UserID:  userID,
		EventID: &eventID,
		Channel: channel,
		Status:  status,
		Content: content,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.log.Error("failed to write notification log", "event_id", eventID, "error", err)
	}
}

func (s *Scheduler) loadCalendars(ctx context.Context, events []model.Event) (map[uint]*model.Calendar, error) {
	ids := make([]uint, 0, len(events))
	seen := map[uint]struct{}{}
	for _, ev := range events {
		if _, ok := seen[ev.CalendarID]; ok {
			continue
		}
		seen[ev.CalendarID] = struct{}{}
		ids = append(ids, ev.CalendarID)
	}

	var cals []model.Calendar
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&cals).Error; err != nil {
		return nil, fmt.Errorf("failed to load calendars: %w", err)
	}
	out := make(map[uint]*model.Calendar, len(cals))
	for i := range cals {
		out[cals[i].ID] = &cals[i]
	}
	return out, nil
}

// eventEnd is the effective end instant used by the overdue pass.
func eventEnd(ev *model.Event) time.Time {
	if ev.EndDate != nil {
		return *ev.EndDate
	}
	return ev.Date
}

func renderTemplate(tpl string, ev *model.Event) string {
	return strings.NewReplacer(
		"{event_title}", ev.Title,
		"{event_time}", ev.Date.Format("2006-01-02 15:04"),
	).Replace(tpl)
}
