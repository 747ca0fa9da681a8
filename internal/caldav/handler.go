// Package caldav exposes calendars and events to standard calendar clients
// as a WebDAV resource tree: calendars are collections, events are .ics
// resources (VEVENT, or VTODO for tasks).
package caldav

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"agenda/internal/model"
	"agenda/internal/store"
)

const (
	headerDAV   = "DAV"
	headerAllow = "Allow"
	headerETag  = "ETag"

	mimeCalendar = "text/calendar; charset=utf-8"
	mimeXML      = `text/xml; charset="utf-8"`

	davCapabilities = "1, calendar-access"
	allowedMethods  = "OPTIONS, PROPFIND, REPORT, GET, PUT, DELETE, MKCOL, MKCALENDAR"
)

// Handler serves the CalDAV surface under a URL prefix.
type Handler struct {
	prefix string
	realm  string
	bridge *Bridge
	log    *slog.Logger

	handlers map[string]func(http.ResponseWriter, *http.Request, *requestContext)
}

// requestContext carries the parsed resource and authenticated user through
// one request.
type requestContext struct {
	res  Resource
	user *model.User
}

// NewHandler creates the CalDAV handler mounted at prefix.
func NewHandler(prefix, realm string, bridge *Bridge, log *slog.Logger) *Handler {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{prefix: prefix, realm: realm, bridge: bridge, log: log}
	h.handlers = map[string]func(http.ResponseWriter, *http.Request, *requestContext){
		"OPTIONS":    h.handleOptions,
		"PROPFIND":   h.handlePropfind,
		"REPORT":     h.handleReport,
		"GET":        h.handleGet,
		"PUT":        h.handlePut,
		"DELETE":     h.handleDelete,
		"MKCOL":      h.handleMkcalendar,
		"MKCALENDAR": h.handleMkcalendar,
	}
	return h
}

// ServeHTTP authenticates, parses the resource path and routes by method.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.log.Debug("caldav request", "method", r.Method, "path", r.URL.Path)

	handler, ok := h.handlers[r.Method]
	if !ok {
		w.Header().Set(headerAllow, allowedMethods)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	user, ok := h.checkAuth(w, r)
	if !ok {
		return
	}

	res, err := ParsePath(strings.TrimPrefix(r.URL.Path, h.prefix))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	// Users only reach their own subtree.
	if res.UserEmail != "" && res.UserEmail != user.Email {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	handler(w, r, &requestContext{res: res, user: user})
}

func (h *Handler) checkAuth(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	email, password, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", h.realm))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	user, err := h.bridge.AuthUser(r.Context(), email, password)
	if err != nil {
		h.log.Warn("caldav auth failed", "user", email)
		w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", h.realm))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return user, true
}

func (h *Handler) handleOptions(w http.ResponseWriter, _ *http.Request, _ *requestContext) {
	w.Header().Set(headerDAV, davCapabilities)
	w.Header().Set(headerAllow, allowedMethods)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, ctx *requestContext) {
	if ctx.res.Type != ResourceObject {
		http.Error(w, "Method Not Allowed on this resource type", http.StatusMethodNotAllowed)
		return
	}

	ev, err := h.bridge.ObjectByUID(r.Context(), ctx.res.ObjectUID)
	if err != nil {
		h.errorStatus(w, err)
		return
	}

	etag := ETag(ev)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	ics, err := EventToICS(ev)
	if err != nil {
		h.log.Error("failed to serialize event", "uid", ev.UID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", mimeCalendar)
	w.Header().Set(headerETag, etag)
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, ics); err != nil {
		h.log.Error("failed to write response", "error", err)
	}
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request, ctx *requestContext) {
	if ctx.res.Type != ResourceObject {
		http.Error(w, "Method Not Allowed on this resource type", http.StatusMethodNotAllowed)
		return
	}
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		http.Error(w, "Unsupported Media Type", http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}
	r.Body.Close()

	data, err := ParseICS(string(body))
	if err != nil {
		h.log.Warn("invalid iCalendar upload", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cal, err := h.bridge.CalendarByName(r.Context(), ctx.user.ID, ctx.res.CalendarName)
	if err != nil {
		h.errorStatus(w, err)
		return
	}

	if r.Header.Get("If-None-Match") == "*" {
		if _, err := h.bridge.ObjectByUID(r.Context(), ctx.res.ObjectUID); err == nil {
			http.Error(w, "Precondition Failed", http.StatusPreconditionFailed)
			return
		}
	}

	ev, created, err := h.bridge.PutObject(r.Context(), ctx.user, cal, ctx.res.ObjectUID, data)
	if err != nil {
		h.errorStatus(w, err)
		return
	}

	w.Header().Set(headerETag, ETag(ev))
	if created {
		w.WriteHeader(http.StatusCreated)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, ctx *requestContext) {
	if ctx.res.Type != ResourceObject {
		http.Error(w, "Method Not Allowed on this resource type", http.StatusMethodNotAllowed)
		return
	}
	if _, err := h.bridge.DeleteObject(r.Context(), ctx.res.ObjectUID); err != nil {
		h.errorStatus(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMkcalendar(w http.ResponseWriter, r *http.Request, ctx *requestContext) {
	if ctx.res.Type != ResourceCollection {
		http.Error(w, "Method Not Allowed on this resource type", http.StatusMethodNotAllowed)
		return
	}
	if _, err := h.bridge.CalendarByName(r.Context(), ctx.user.ID, ctx.res.CalendarName); err == nil {
		http.Error(w, "Collection already exists", http.StatusMethodNotAllowed)
		return
	}
	if _, err := h.bridge.CreateCalendar(r.Context(), ctx.user.ID, ctx.res.CalendarName); err != nil {
		h.errorStatus(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// errorStatus translates store sentinels into WebDAV status codes.
func (h *Handler) errorStatus(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "Not Found", http.StatusNotFound)
	case errors.Is(err, store.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrConflict):
		http.Error(w, "Conflict", http.StatusConflict)
	default:
		h.log.Error("caldav internal error", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
