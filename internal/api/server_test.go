package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"agenda/internal/event"
	"agenda/internal/filter"
	"agenda/internal/model"
	"agenda/internal/store"
)

func newTestAPI(t *testing.T) (*httptest.Server, *gorm.DB) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	compiler := filter.NewCompiler(filter.DefaultRegistry(), log)
	events := event.NewManager(db, compiler, log)

	srv := httptest.NewServer(New(db, events, compiler, log).Routes())
	t.Cleanup(srv.Close)
	return srv, db
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, token string, payload any) (*http.Response, []byte) {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req, err := http.NewRequest(method, srv.URL+path, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func registerUser(t *testing.T, srv *httptest.Server, email string) (string, model.User) {
	t.Helper()
	resp, raw := doJSON(t, srv, "POST", "/auth/register", "", map[string]any{
		"name": email, "email": email, "password": "s3cret",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var out authResponse
	require.NoError(t, json.Unmarshal(raw, &out))
	return out.Token, out.User
}

func TestRegisterAndLogin(t *testing.T) {
	srv, _ := newTestAPI(t)
	token, u := registerUser(t, srv, "ana@example.com")
	assert.NotEmpty(t, token)
	assert.NotZero(t, u.ID)

	resp, raw := doJSON(t, srv, "POST", "/auth/login", "", map[string]any{
		"email": "ana@example.com", "password": "s3cret",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out authResponse
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.NotEmpty(t, out.Token)
	assert.NotNil(t, out.User.LastLogin)

	resp, _ = doJSON(t, srv, "POST", "/auth/login", "", map[string]any{
		"email": "ana@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	srv, _ := newTestAPI(t)
	registerUser(t, srv, "ana@example.com")
	resp, _ := doJSON(t, srv, "POST", "/auth/register", "", map[string]any{
		"name": "again", "email": "ana@example.com", "password": "x",
	})
	assert.NotEqual(t, http.StatusCreated, resp.StatusCode)
}

func TestPasswordNeverSerialized(t *testing.T) {
	srv, _ := newTestAPI(t)
	_, raw := doJSON(t, srv, "POST", "/auth/register", "", map[string]any{
		"name": "ana", "email": "ana@example.com", "password": "s3cret",
	})
	assert.NotContains(t, string(raw), "s3cret")
	assert.NotContains(t, string(raw), "password")
}

func TestCrudRequiresToken(t *testing.T) {
	srv, _ := newTestAPI(t)
	resp, _ := doJSON(t, srv, "GET", "/crud/event/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, srv, "GET", "/crud/event/", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEventCrudFlow(t *testing.T) {
	srv, _ := newTestAPI(t)
	token, u := registerUser(t, srv, "ana@example.com")

	resp, raw := doJSON(t, srv, "POST", "/crud/calendar/", token, map[string]any{"name": "work"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var cal model.Calendar
	require.NoError(t, json.Unmarshal(raw, &cal))
	require.NotNil(t, cal.OwnerID)
	assert.Equal(t, u.ID, *cal.OwnerID)

	resp, raw = doJSON(t, srv, "POST", "/crud/event/", token, map[string]any{
		"title":       "standup",
		"date":        time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		"calendar_id": cal.ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var ev model.Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	require.Len(t, ev.Users, 1, "creator becomes the default participant")

	// '+' is the rule separator, so it travels percent-encoded.
	resp, raw = doJSON(t, srv, "GET", "/crud/event/?filters=title%2Beq%2Bstandup", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []model.Event
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list, 1)

	resp, raw = doJSON(t, srv, "PUT", "/crud/event/"+itoa(ev.ID), token, map[string]any{
		"title": "standup (moved)",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, "standup (moved)", ev.Title)

	resp, _ = doJSON(t, srv, "DELETE", "/crud/event/"+itoa(ev.ID), token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, srv, "GET", "/crud/event/"+itoa(ev.ID), token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventCreateRejectsMissingCalendar(t *testing.T) {
	srv, _ := newTestAPI(t)
	token, _ := registerUser(t, srv, "ana@example.com")
	resp, _ := doJSON(t, srv, "POST", "/crud/event/", token, map[string]any{
		"title": "orphan", "date": time.Now(), "calendar_id": 999,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListJoinedFiltersDeduplicate(t *testing.T) {
	srv, _ := newTestAPI(t)
	token, u := registerUser(t, srv, "ana@example.com")

	resp, raw := doJSON(t, srv, "POST", "/crud/calendar/", token, map[string]any{"name": "work"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var cal model.Calendar
	require.NoError(t, json.Unmarshal(raw, &cal))

	for _, title := range []string{"review a", "review b"} {
		resp, raw = doJSON(t, srv, "POST", "/crud/event/", token, map[string]any{
			"title":       title,
			"date":        time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
			"calendar_id": cal.ID,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	}

	// Both events match, but the calendar must come back once.
	resp, raw = doJSON(t, srv, "GET", "/crud/calendar/?filters=events.title%2Bct%2Breview", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cals []model.Calendar
	require.NoError(t, json.Unmarshal(raw, &cals))
	require.Len(t, cals, 1)
	assert.Equal(t, cal.ID, cals[0].ID)

	// Same invariant on the user list: ana participates in both events.
	resp, raw = doJSON(t, srv, "GET", "/crud/user/?filters=events.title%2Bct%2Breview", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var users []model.User
	require.NoError(t, json.Unmarshal(raw, &users))
	require.Len(t, users, 1)
	assert.Equal(t, u.ID, users[0].ID)

	// And on profiles, where the join runs through permissions.
	resp, raw = doJSON(t, srv, "POST", "/crud/profile/", token, map[string]any{
		"name": "admin",
		"permissions": []map[string]any{
			{"entity": "events", "can_view": true},
			{"entity": "calendars", "can_view": true},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var profile model.UserProfile
	require.NoError(t, json.Unmarshal(raw, &profile))

	resp, raw = doJSON(t, srv, "GET", "/crud/profile/?filters=permissions.can_view%2Beq%2Btrue", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var profiles []model.UserProfile
	require.NoError(t, json.Unmarshal(raw, &profiles))
	require.Len(t, profiles, 1)
	assert.Equal(t, profile.ID, profiles[0].ID)
}

func TestUserAccessIsScopedToSelf(t *testing.T) {
	srv, _ := newTestAPI(t)
	anaToken, _ := registerUser(t, srv, "ana@example.com")
	_, eve := registerUser(t, srv, "eve@example.com")

	resp, _ := doJSON(t, srv, "PUT", "/crud/user/"+itoa(eve.ID), anaToken, map[string]any{"name": "hacked"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doJSON(t, srv, "DELETE", "/crud/user/"+itoa(eve.ID), anaToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestProfileCrudFlow(t *testing.T) {
	srv, _ := newTestAPI(t)
	token, _ := registerUser(t, srv, "ana@example.com")

	resp, raw := doJSON(t, srv, "POST", "/crud/profile/", token, map[string]any{
		"name": "editor",
		"permissions": []map[string]any{
			{"entity": "events", "can_view": true, "can_create": true},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var profile model.UserProfile
	require.NoError(t, json.Unmarshal(raw, &profile))
	require.Len(t, profile.Permissions, 1)

	resp, raw = doJSON(t, srv, "PUT", "/crud/profile/"+itoa(profile.ID), token, map[string]any{
		"permissions": []map[string]any{
			{"entity": "events", "can_view": true},
			{"entity": "calendars", "can_view": true},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	require.NoError(t, json.Unmarshal(raw, &profile))
	assert.Len(t, profile.Permissions, 2, "permission set is replaced wholesale")

	resp, _ = doJSON(t, srv, "DELETE", "/crud/profile/"+itoa(profile.ID), token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestNotificationsOwnerOnly(t *testing.T) {
	srv, db := newTestAPI(t)
	anaToken, ana := registerUser(t, srv, "ana@example.com")
	eveToken, eve := registerUser(t, srv, "eve@example.com")

	row := model.NotificationLog{UserID: ana.ID, Channel: model.NotifyEmail, Status: model.LogSent, Content: "hi"}
	require.NoError(t, db.Create(&row).Error)
	other := model.NotificationLog{UserID: eve.ID, Channel: model.NotifyEmail, Status: model.LogSent, Content: "yo"}
	require.NoError(t, db.Create(&other).Error)

	resp, raw := doJSON(t, srv, "GET", "/notifications", anaToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var logs []model.NotificationLog
	require.NoError(t, json.Unmarshal(raw, &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, ana.ID, logs[0].UserID)

	// Marking someone else's row looks like a missing record.
	resp, _ = doJSON(t, srv, "POST", "/notifications/"+itoa(row.ID)+"/read", eveToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, srv, "POST", "/notifications/"+itoa(row.ID)+"/read", anaToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, raw = doJSON(t, srv, "GET", "/notifications?unread_only=true", anaToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &logs))
	assert.Empty(t, logs)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
