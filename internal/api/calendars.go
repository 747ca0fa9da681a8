package api

import (
	"encoding/json"
	"net/http"

	"agenda/internal/model"
	"agenda/internal/store"
)

type calendarPayload struct {
	Name                 *string `json:"name"`
	Description          *string `json:"description"`
	Color                *string `json:"color"`
	Visible              *bool   `json:"visible"`
	IsPrivate            *bool   `json:"is_private"`
	NotificationType     *string `json:"notification_type"`
	NotifyBeforeMinutes  *int    `json:"notify_before_minutes"`
	NotifyRepeats        *int    `json:"notify_repeats"`
	NotificationTemplate *string `json:"notification_template"`
}

func (p calendarPayload) apply(c *model.Calendar) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Color != nil {
		c.Color = *p.Color
	}
	if p.Visible != nil {
		c.Visible = *p.Visible
	}
	if p.IsPrivate != nil {
		c.IsPrivate = *p.IsPrivate
	}
	if p.NotificationType != nil {
		c.NotificationType = *p.NotificationType
	}
	if p.NotifyBeforeMinutes != nil {
		c.NotifyBeforeMinutes = *p.NotifyBeforeMinutes
	}
	if p.NotifyRepeats != nil {
		c.NotifyRepeats = *p.NotifyRepeats
	}
	if p.NotificationTemplate != nil {
		c.NotificationTemplate = *p.NotificationTemplate
	}
}

func (s *Server) handleCreateCalendar(w http.ResponseWriter, r *http.Request, userID uint) {
	var p calendarPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if p.Name == nil || *p.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	cal := model.Calendar{
		OwnerID:          &userID,
		Color:            "#0000FF",
		Visible:          true,
		NotificationType: model.NotifyNone,
	}
	p.apply(&cal)

	if err := s.db.WithContext(r.Context()).Create(&cal).Error; err != nil {
		s.writeStoreError(w, store.Translate(err))
		return
	}
	writeJSON(w, http.StatusCreated, cal)
}

func (s *Server) handleListCalendars(w http.ResponseWriter, r *http.Request, _ uint) {
	filters, skip, limit := listParams(r)
	pred := s.compiler.Compile(filters, "calendars")
	tx := pred.Apply(s.db.WithContext(r.Context()).Model(&model.Calendar{}))
	if pred.Joined() {
		// A relationship join yields one row per matching related record.
		tx = tx.Distinct("calendars.*")
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var calendars []model.Calendar
	if err := tx.Offset(skip).Find(&calendars).Error; err != nil {
		s.writeStoreError(w, store.Translate(err))
		return
	}
	writeJSON(w, http.StatusOK, calendars)
}

func (s *Server) handleGetCalendar(w http.ResponseWriter, r *http.Request, _ uint) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid calendar id")
		return
	}
	var cal model.Calendar
	if err := s.db.WithContext(r.Context()).Preload("Events").First(&cal, id).Error; err != nil {
		s.writeStoreError(w, store.Translate(err))
		return
	}
	writeJSON(w, http.StatusOK, cal)
}

func (s *Server) handleUpdateCalendar(w http.ResponseWriter, r *http.Request, _ uint) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid calendar id")
		return
	}
	var p calendarPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	var cal model.Calendar
	if err := s.db.WithContext(r.Context()).First(&cal, id).Error; err != nil {
		s.writeStoreError(w, store.Translate(err))
		return
	}
	p.apply(&cal)
	if err := s.db.WithContext(r.Context()).Save(&cal).Error; err != nil {
		s.writeStoreError(w, store.Translate(err))
		return
	}
	writeJSON(w, http.StatusOK, cal)
}

func (s *Server) handleDeleteCalendar(w http.ResponseWriter, r *http.Request, _ uint) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid calendar id")
		return
	}
	res := s.db.WithContext(r.Context()).Delete(&model.Calendar{}, id)
	if res.Error != nil {
		s.writeStoreError(w, store.Translate(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		writeError(w, http.StatusNotFound, "calendar not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
