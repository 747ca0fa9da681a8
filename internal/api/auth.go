package api

import (
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"agenda/internal/model"
	"agenda/internal/store"
)

type registerRequest struct {
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	PhoneNumber *string `json:"phone_number"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	user := model.User{
		Name:        req.Name,
		Email:       req.Email,
		Password:    string(hash),
		PhoneNumber: req.PhoneNumber,
	}
	if err := s.db.WithContext(r.Context()).Create(&user).Error; err != nil {
		s.writeStoreError(w, store.Translate(err))
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{Token: s.newSession(user.ID), User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	var user model.User
	err := s.db.WithContext(r.Context()).Where("email = ?", req.Email).First(&user).Error
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	now := time.Now()
	s.db.Model(&user).Update("last_login", &now)

	writeJSON(w, http.StatusOK, authResponse{Token: s.newSession(user.ID), User: user})
}
