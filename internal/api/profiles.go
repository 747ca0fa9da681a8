package api

import (
	"encoding/json"
	"net/http"

	"agenda/internal/model"
	"agenda/internal/store"
)

type profilePayload struct {
	Name        string             `json:"name"`
	Permissions []model.Permission `json:"permissions"`
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request, _ uint) {
	var p profilePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if p.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	profile := model.UserProfile{Name: p.Name, Permissions: p.Permissions}
	if err := s.db.WithContext(r.Context()).Create(&profile).Error; err != nil {
		s.writeStoreError(w, store.Translate(err))
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request, _ uint) {
	filters, skip, limit := listParams(r)
	pred := s.compiler.Compile(filters, "profiles")
	tx := pred.Apply(s.db.WithContext(r.Context()).Model(&model.UserProfile{}))
	if pred.Joined() {
		tx = tx.Distinct("user_profiles.*")
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var profiles []model.UserProfile
	if err := tx.Offset(skip).Preload("Permissions").Find(&profiles).Error; err != nil {
		s.writeStoreError(w, store.Translate(err))
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request, _ uint) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}
	var profile model.UserProfile
	if err := s.db.WithContext(r.Context()).Preload("Permissions").First(&profile, id).Error; err != nil {
		s.writeStoreError(w, store.Translate(err))
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleUpdateProfile renames the profile and, when a permission list is
// present, replaces the whole set.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, _ uint) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}
	var p struct {
		Name        *string             `json:"name"`
		Permissions *[]model.Permission `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	var profile model.UserProfile
	if err := s.db.WithContext(r.Context()).First(&profile, id).Error; err != nil {
		s.writeStoreError(w, store.Translate(err))
		return
	}
	if p.Name != nil {
		profile.Name = *p.Name
	}

	db := s.db.WithContext(r.Context())
	if err := db.Save(&profile).Error; err != nil {
		s.writeStoreError(w, store.Translate(err))
		return
	}
	if p.Permissions != nil {
		if err := db.Where("profile_id = ?", profile.ID).Delete(&model.Permission{}).Error; err != nil {
			s.writeStoreError(w, store.Translate(err))
			return
		}
		for i := range *p.Permissions {
			(*p.Permissions)[i].ID = 0
			(*p.Permissions)[i].ProfileID = profile.ID
		}
		if len(*p.Permissions) > 0 {
			if err := db.Create(p.Permissions).Error; err != nil {
				s.writeStoreError(w, store.Translate(err))
				return
			}
		}
	}

	var out model.UserProfile
	if err := db.Preload("Permissions").First(&out, profile.ID).Error; err != nil {
		s.writeStoreError(w, store.Translate(err))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request, _ uint) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}
	res := s.db.WithContext(r.Context()).Delete(&model.UserProfile{}, id)
	if res.Error != nil {
		s.writeStoreError(w, store.Translate(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
