package caldav

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/beevik/etree"

	"agenda/internal/model"
)

// reportTimeLayout is the time-range attribute form mandated by the
// calendar-query REPORT.
const reportTimeLayout = "20060102T150405Z"

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request, ctx *requestContext) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r.Body); err != nil || doc.Root() == nil {
		http.Error(w, "Error parsing XML request body", http.StatusBadRequest)
		return
	}

	switch localName(doc.Root().Tag) {
	case "calendar-query":
		h.handleCalendarQuery(w, r, ctx, doc)
	case "calendar-multiget":
		h.handleCalendarMultiget(w, r, ctx, doc)
	default:
		http.Error(w, "Unsupported report type", http.StatusBadRequest)
	}
}

// handleCalendarQuery answers a calendar-query REPORT on a collection. A
// time-range filter maps onto the half-open range query; without one the
// whole collection is returned.
func (h *Handler) handleCalendarQuery(w http.ResponseWriter, r *http.Request, ctx *requestContext, doc *etree.Document) {
	if ctx.res.Type != ResourceCollection {
		http.Error(w, "calendar-query targets a calendar collection", http.StatusBadRequest)
		return
	}

	cal, err := h.bridge.CalendarByName(r.Context(), ctx.user.ID, ctx.res.CalendarName)
	if err != nil {
		h.errorStatus(w, err)
		return
	}

	var events []model.Event
	if start, end, ok, err := parseTimeRange(doc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	} else if ok {
		events, err = h.bridge.EventsInRange(r.Context(), cal.ID, start, end)
		if err != nil {
			h.errorStatus(w, err)
			return
		}
	} else {
		events, err = h.bridge.CalendarEvents(r.Context(), cal.ID)
		if err != nil {
			h.errorStatus(w, err)
			return
		}
	}

	h.writeReport(w, ctx, cal.Name, events, nil)
}

// handleCalendarMultiget answers a calendar-multiget REPORT: one response
// per requested href, with a 404 response for each href that does not
// resolve to a stored object.
func (h *Handler) handleCalendarMultiget(w http.ResponseWriter, r *http.Request, ctx *requestContext, doc *etree.Document) {
	var events []model.Event
	var missing []string
	calName := ctx.res.CalendarName

	for _, hrefEl := range doc.Root().FindElements("//href") {
		href := strings.TrimSpace(hrefEl.Text())
		res, err := ParsePath(strings.TrimPrefix(href, h.prefix))
		if err != nil || res.Type != ResourceObject {
			missing = append(missing, href)
			continue
		}
		ev, err := h.bridge.ObjectByUID(r.Context(), res.ObjectUID)
		if err != nil {
			h.log.Debug("multiget href not found", "uid", res.ObjectUID)
			missing = append(missing, href)
			continue
		}
		calName = res.CalendarName
		events = append(events, *ev)
	}

	h.writeReport(w, ctx, calName, events, missing)
}

// parseTimeRange extracts the first comp-filter time-range, if any.
func parseTimeRange(doc *etree.Document) (start, end time.Time, ok bool, err error) {
	tr := doc.Root().FindElement("//time-range")
	if tr == nil {
		return time.Time{}, time.Time{}, false, nil
	}

	parseAttr := func(name string, fallback time.Time) (time.Time, error) {
		v := tr.SelectAttrValue(name, "")
		if v == "" {
			return fallback, nil
		}
		t, err := time.Parse(reportTimeLayout, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid time-range %s %q: %w", name, v, err)
		}
		return t, nil
	}

	if start, err = parseAttr("start", time.Time{}); err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	// An absent end means "no upper bound"; push it far out.
	if end, err = parseAttr("end", time.Now().AddDate(100, 0, 0)); err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	return start, end, true, nil
}

// writeReport renders a multistatus of getetag + calendar-data per event,
// plus a bare 404 response per unresolved href.
func (h *Handler) writeReport(w http.ResponseWriter, ctx *requestContext, calName string, events []model.Event, missing []string) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement("D:multistatus")
	root.CreateAttr("xmlns:D", nsDAV)
	root.CreateAttr("xmlns:C", nsCalDAV)

	for i := range events {
		ev := &events[i]
		ics, err := EventToICS(ev)
		if err != nil {
			h.log.Error("failed to serialize event for report", "uid", ev.UID, "error", err)
			continue
		}

		res := Resource{
			Type:         ResourceObject,
			UserEmail:    ctx.user.Email,
			CalendarName: calName,
			ObjectUID:    ev.UID,
		}
		resp := root.CreateElement("D:response")
		resp.CreateElement("D:href").SetText(res.Href(h.prefix))
		ps := resp.CreateElement("D:propstat")
		prop := ps.CreateElement("D:prop")
		prop.CreateElement("D:getetag").SetText(ETag(ev))
		prop.CreateElement("C:calendar-data").SetText(ics)
		ps.CreateElement("D:status").SetText("HTTP/1.1 200 OK")
	}

	for _, href := range missing {
		resp := root.CreateElement("D:response")
		resp.CreateElement("D:href").SetText(href)
		resp.CreateElement("D:status").SetText("HTTP/1.1 404 Not Found")
	}

	w.Header().Set("Content-Type", mimeXML)
	w.WriteHeader(http.StatusMultiStatus)
	doc.Indent(2)
	if _, err := doc.WriteTo(w); err != nil {
		return
	}
}
