package api

import (
	"net/http"

	"agenda/internal/model"
	"agenda/internal/store"
)

// handleListNotifications returns the authenticated user's notification log,
// newest first. The unread_only query parameter narrows to unread rows.
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request, userID uint) {
	_, skip, limit := listParams(r)
	tx := s.db.WithContext(r.Context()).Where("user_id = ?", userID).Order("created_at DESC")
	if r.URL.Query().Get("unread_only") == "true" {
		tx = tx.Where("is_read = ?", false)
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var logs []model.NotificationLog
	if err := tx.Offset(skip).Find(&logs).Error; err != nil {
		s.writeStoreError(w, store.Translate(err))
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// handleMarkNotificationRead flips is_read on one of the caller's own rows.
func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request, userID uint) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	res := s.db.WithContext(r.Context()).
		Model(&model.NotificationLog{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		s.writeStoreError(w, store.Translate(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
