package api

import (
	"encoding/json"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"agenda/internal/model"
	"agenda/internal/store"
)

type userPayload struct {
	Name        *string `json:"name"`
	Email       *string `json:"email"`
	Password    *string `json:"password"`
	PhoneNumber *string `json:"phone_number"`
	ProfileID   *uint   `json:"profile_id"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, _ uint) {
	filters, skip, limit := listParams(r)
	pred := s.compiler.Compile(filters, "users")
	tx := pred.Apply(s.db.WithContext(r.Context()).Model(&model.User{}))
	if pred.Joined() {
		tx = tx.Distinct("users.*")
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var users []model.User
	if err := tx.Offset(skip).Find(&users).Error; err != nil {
		s.writeStoreError(w, store.Translate(err))
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request, _ uint) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var user model.User
	if err := s.db.WithContext(r.Context()).First(&user, id).Error; err != nil {
		s.writeStoreError(w, store.Translate(err))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request, authID uint) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if id != authID {
		writeError(w, http.StatusForbidden, "cannot modify another user")
		return
	}
	var p userPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	var user model.User
	if err := s.db.WithContext(r.Context()).First(&user, id).Error; err != nil {
		s.writeStoreError(w, store.Translate(err))
		return
	}
	if p.Name != nil {
		user.Name = *p.Name
	}
	if p.Email != nil {
		user.Email = *p.Email
	}
	if p.PhoneNumber != nil {
		user.PhoneNumber = p.PhoneNumber
	}
	if p.ProfileID != nil {
		user.ProfileID = p.ProfileID
	}
	if p.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*p.Password), bcrypt.DefaultCost)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		user.Password = string(hash)
	}

	if err := s.db.WithContext(r.Context()).Save(&user).Error; err != nil {
		s.writeStoreError(w, store.Translate(err))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, authID uint) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if id != authID {
		writeError(w, http.StatusForbidden, "cannot delete another user")
		return
	}
	res := s.db.WithContext(r.Context()).Delete(&model.User{}, id)
	if res.Error != nil {
		s.writeStoreError(w, store.Translate(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
