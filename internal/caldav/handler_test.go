package caldav

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:obj-1\r\n" +
	"DTSTAMP:20240601T000000Z\r\n" +
	"DTSTART:20240601T090000Z\r\n" +
	"DTEND:20240601T100000Z\r\n" +
	"SUMMARY:Standup\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func newTestServer(t *testing.T) (*httptest.Server, *Bridge) {
	t.Helper()
	b, db := newTestBridge(t)
	u := seedDavUser(t, db, "ana@example.com", "pw")
	_, err := b.CreateCalendar(context.Background(), u.ID, "work")
	require.NoError(t, err)
	seedDavUser(t, db, "eve@example.com", "pw")

	srv := httptest.NewServer(NewHandler("/dav", "test", b, nil))
	t.Cleanup(srv.Close)
	return srv, b
}

func doDav(t *testing.T, srv *httptest.Server, method, path, email, body string, hdr map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if email != "" {
		req.SetBasicAuth(email, "pw")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestOptionsAdvertisesCaldav(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doDav(t, srv, "OPTIONS", "/dav/", "ana@example.com", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("DAV"), "calendar-access")
}

func TestUnauthenticatedGets401(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doDav(t, srv, "OPTIONS", "/dav/", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")
}

func TestForeignSubtreeIsForbidden(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doDav(t, srv, "GET", "/dav/ana@example.com/work/x.ics", "eve@example.com", "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPutGetDeleteObject(t *testing.T) {
	srv, _ := newTestServer(t)
	path := "/dav/ana@example.com/work/obj-1.ics"
	ctHdr := map[string]string{"Content-Type": "text/calendar"}

	resp := doDav(t, srv, "PUT", path, "ana@example.com", testICS, ctHdr)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	resp = doDav(t, srv, "GET", path, "ana@example.com", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, etag, resp.Header.Get("ETag"))

	resp = doDav(t, srv, "GET", path, "ana@example.com", "", map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)

	// Overwriting an existing object with If-None-Match: * must fail.
	resp = doDav(t, srv, "PUT", path, "ana@example.com", testICS,
		map[string]string{"Content-Type": "text/calendar", "If-None-Match": "*"})
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)

	// A plain overwrite succeeds as an update.
	resp = doDav(t, srv, "PUT", path, "ana@example.com", testICS, ctHdr)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doDav(t, srv, "DELETE", path, "ana@example.com", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doDav(t, srv, "GET", path, "ana@example.com", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPutRejectsWrongContentType(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doDav(t, srv, "PUT", "/dav/ana@example.com/work/obj-1.ics", "ana@example.com",
		testICS, map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestMkcalendarCreatesCollection(t *testing.T) {
	srv, b := newTestServer(t)
	resp := doDav(t, srv, "MKCALENDAR", "/dav/ana@example.com/personal/", "ana@example.com", "", nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	u, err := b.AuthUser(context.Background(), "ana@example.com", "pw")
	require.NoError(t, err)
	_, err = b.CalendarByName(context.Background(), u.ID, "personal")
	assert.NoError(t, err)

	// Creating it again conflicts.
	resp = doDav(t, srv, "MKCALENDAR", "/dav/ana@example.com/personal/", "ana@example.com", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestPropfindCollectionListsObjects(t *testing.T) {
	srv, _ := newTestServer(t)
	path := "/dav/ana@example.com/work/obj-1.ics"
	doDav(t, srv, "PUT", path, "ana@example.com", testICS, map[string]string{"Content-Type": "text/calendar"})

	resp := doDav(t, srv, "PROPFIND", "/dav/ana@example.com/work/", "ana@example.com", "", map[string]string{"Depth": "1"})
	assert.Equal(t, http.StatusMultiStatus, resp.StatusCode)

	body := readBody(t, resp)
	assert.Contains(t, body, "multistatus")
	assert.Contains(t, body, "/dav/ana@example.com/work/")
	assert.Contains(t, body, "obj-1.ics")
}

func TestPropfindRejectsInfiniteDepth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doDav(t, srv, "PROPFIND", "/dav/ana@example.com/", "ana@example.com", "", map[string]string{"Depth": "infinity"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "propfind-finite-depth")
}

func TestReportCalendarQueryTimeRange(t *testing.T) {
	srv, _ := newTestServer(t)
	doDav(t, srv, "PUT", "/dav/ana@example.com/work/obj-1.ics", "ana@example.com",
		testICS, map[string]string{"Content-Type": "text/calendar"})

	query := `<?xml version="1.0" encoding="utf-8"?>
<C:calendar-query xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:prop><D:getetag/><C:calendar-data/></D:prop>
  <C:filter>
    <C:comp-filter name="VCALENDAR">
      <C:comp-filter name="VEVENT">
        <C:time-range start="20240601T000000Z" end="20240602T000000Z"/>
      </C:comp-filter>
    </C:comp-filter>
  </C:filter>
</C:calendar-query>`

	resp := doDav(t, srv, "REPORT", "/dav/ana@example.com/work/", "ana@example.com", query, nil)
	assert.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "obj-1.ics")
	assert.Contains(t, body, "calendar-data")

	// A disjoint window returns an empty multistatus.
	disjoint := strings.ReplaceAll(query, "20240601T000000Z", "20300101T000000Z")
	disjoint = strings.ReplaceAll(disjoint, "20240602T000000Z", "20300102T000000Z")
	resp = doDav(t, srv, "REPORT", "/dav/ana@example.com/work/", "ana@example.com", disjoint, nil)
	assert.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	assert.NotContains(t, readBody(t, resp), "obj-1.ics")
}

func TestReportMultiget(t *testing.T) {
	srv, _ := newTestServer(t)
	doDav(t, srv, "PUT", "/dav/ana@example.com/work/obj-1.ics", "ana@example.com",
		testICS, map[string]string{"Content-Type": "text/calendar"})

	query := `<?xml version="1.0" encoding="utf-8"?>
<C:calendar-multiget xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:prop><D:getetag/><C:calendar-data/></D:prop>
  <D:href>/dav/ana@example.com/work/obj-1.ics</D:href>
  <D:href>/dav/ana@example.com/work/missing.ics</D:href>
</C:calendar-multiget>`

	resp := doDav(t, srv, "REPORT", "/dav/ana@example.com/work/", "ana@example.com", query, nil)
	assert.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "obj-1.ics")

	// An href that resolves to nothing still gets its own response.
	assert.Contains(t, body, "/dav/ana@example.com/work/missing.ics")
	assert.Contains(t, body, "HTTP/1.1 404 Not Found")
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}
