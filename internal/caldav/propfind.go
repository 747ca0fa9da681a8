package caldav

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/beevik/etree"
	"github.com/samber/mo"

	"agenda/internal/model"
)

// XML namespaces used in PROPFIND/REPORT responses.
const (
	nsDAV    = "DAV:"
	nsCalDAV = "urn:ietf:params:xml:ns:caldav"
	nsCS     = "http://calendarserver.org/ns/"
	nsApple  = "http://apple.com/ns/ical/"
)

// defaultProps is what an allprop (or empty-body) PROPFIND resolves.
var defaultProps = []string{
	"resourcetype",
	"displayname",
	"getetag",
	"getcontenttype",
	"current-user-principal",
	"calendar-home-set",
	"calendar-color",
	"supported-calendar-component-set",
	"getctag",
}

// propFill writes one resolved property into a D:prop element.
type propFill func(prop *etree.Element)

func (h *Handler) handlePropfind(w http.ResponseWriter, r *http.Request, ctx *requestContext) {
	depth := r.Header.Get("Depth")
	if depth == "" {
		depth = "1"
	}
	if depth == "infinity" {
		// Unbounded traversal is not supported on this tree.
		doc := etree.NewDocument()
		doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
		errEl := doc.CreateElement("D:error")
		errEl.CreateAttr("xmlns:D", nsDAV)
		errEl.CreateElement("D:propfind-finite-depth")
		w.Header().Set("Content-Type", mimeXML)
		w.WriteHeader(http.StatusForbidden)
		doc.Indent(2)
		if _, err := doc.WriteTo(w); err != nil {
			return
		}
		return
	}

	names := h.requestedProps(r)

	ms := newMultistatus()
	if err := h.respondResource(r, ms, ctx, ctx.res); err != nil {
		h.errorStatus(w, err)
		return
	}

	if depth != "0" {
		if err := h.respondChildren(r, ms, ctx); err != nil {
			h.errorStatus(w, err)
			return
		}
	}

	writeMultistatus(w, ms, names)
}

// requestedProps extracts the prop names from the request body; a missing
// or allprop body selects the default set.
func (h *Handler) requestedProps(r *http.Request) []string {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r.Body); err != nil || doc.Root() == nil {
		return defaultProps
	}
	prop := doc.Root().FindElement("//prop")
	if prop == nil {
		return defaultProps
	}
	var names []string
	for _, el := range prop.ChildElements() {
		names = append(names, localName(el.Tag))
	}
	if len(names) == 0 {
		return defaultProps
	}
	return names
}

func localName(tag string) string {
	if i := strings.Index(tag, ":"); i != -1 {
		return tag[i+1:]
	}
	return tag
}

// multistatus accumulates (href, props) responses; the requested prop names
// are matched at write time so unresolved ones land in the 404 propstat.
type multistatus struct {
	responses []msResponse
}

type msResponse struct {
	href  string
	props map[string]propFill
}

func newMultistatus() *multistatus { return &multistatus{} }

func (ms *multistatus) add(href string, props map[string]propFill) {
	ms.responses = append(ms.responses, msResponse{href: href, props: props})
}

// respondResource resolves the target resource itself.
func (h *Handler) respondResource(r *http.Request, ms *multistatus, ctx *requestContext, res Resource) error {
	switch res.Type {
	case ResourceRoot, ResourcePrincipal:
		principal := Resource{Type: ResourcePrincipal, UserEmail: ctx.user.Email}
		ms.add(res.Href(h.prefix), h.principalProps(principal))
		return nil

	case ResourceCollection:
		cal, err := h.bridge.CalendarByName(r.Context(), ctx.user.ID, res.CalendarName)
		if err != nil {
			return err
		}
		ctag, err := h.collectionTag(r, cal)
		if err != nil {
			return err
		}
		ms.add(res.Href(h.prefix), h.collectionProps(ctx, cal, ctag))
		return nil

	case ResourceObject:
		ev, err := h.bridge.ObjectByUID(r.Context(), res.ObjectUID)
		if err != nil {
			return err
		}
		ms.add(res.Href(h.prefix), h.objectProps(ctx, ev))
		return nil
	}
	return nil
}

// respondChildren adds the depth-1 members: a principal's calendars or a
// collection's objects.
func (h *Handler) respondChildren(r *http.Request, ms *multistatus, ctx *requestContext) error {
	switch ctx.res.Type {
	case ResourceRoot, ResourcePrincipal:
		cals, err := h.bridge.UserCalendars(r.Context(), ctx.user.ID)
		if err != nil {
			return err
		}
		for i := range cals {
			res := Resource{Type: ResourceCollection, UserEmail: ctx.user.Email, CalendarName: cals[i].Name}
			ctag, err := h.collectionTag(r, &cals[i])
			if err != nil {
				return err
			}
			ms.add(res.Href(h.prefix), h.collectionProps(ctx, &cals[i], ctag))
		}

	case ResourceCollection:
		cal, err := h.bridge.CalendarByName(r.Context(), ctx.user.ID, ctx.res.CalendarName)
		if err != nil {
			return err
		}
		events, err := h.bridge.CalendarEvents(r.Context(), cal.ID)
		if err != nil {
			return err
		}
		for i := range events {
			res := Resource{
				Type:         ResourceObject,
				UserEmail:    ctx.user.Email,
				CalendarName: cal.Name,
				ObjectUID:    events[i].UID,
			}
			ms.add(res.Href(h.prefix), h.objectProps(ctx, &events[i]))
		}
	}
	return nil
}

// collectionTag derives the ctag from the collection's content: it changes
// whenever an object is added, removed or rescheduled.
func (h *Handler) collectionTag(r *http.Request, cal *model.Calendar) (string, error) {
	events, err := h.bridge.CalendarEvents(r.Context(), cal.ID)
	if err != nil {
		return "", err
	}
	var latest int64
	for _, ev := range events {
		if u := ev.UpdatedAt.Unix(); u > latest {
			latest = u
		}
	}
	return fmt.Sprintf("\"%d-%d-%d\"", cal.ID, len(events), latest), nil
}

func (h *Handler) principalProps(principal Resource) map[string]propFill {
	href := principal.Href(h.prefix)
	return map[string]propFill{
		"resourcetype": func(p *etree.Element) {
			rt := p.CreateElement("D:resourcetype")
			rt.CreateElement("D:collection")
			rt.CreateElement("D:principal")
		},
		"displayname":            textProp("D:displayname", principal.UserEmail),
		"current-user-principal": hrefProp("D:current-user-principal", href),
		"calendar-home-set":      hrefProp("C:calendar-home-set", href),
	}
}

func (h *Handler) collectionProps(ctx *requestContext, cal *model.Calendar, ctag string) map[string]propFill {
	principal := Resource{Type: ResourcePrincipal, UserEmail: ctx.user.Email}
	return map[string]propFill{
		"resourcetype": func(p *etree.Element) {
			rt := p.CreateElement("D:resourcetype")
			rt.CreateElement("D:collection")
			rt.CreateElement("C:calendar")
		},
		"displayname":            textProp("D:displayname", cal.Name),
		"calendar-color":         textProp("A:calendar-color", cal.Color),
		"getctag":                textProp("CS:getctag", ctag),
		"current-user-principal": hrefProp("D:current-user-principal", principal.Href(h.prefix)),
		"calendar-home-set":      hrefProp("C:calendar-home-set", principal.Href(h.prefix)),
		"supported-calendar-component-set": func(p *etree.Element) {
			set := p.CreateElement("C:supported-calendar-component-set")
			for _, comp := range []string{"VEVENT", "VTODO"} {
				c := set.CreateElement("C:comp")
				c.CreateAttr("name", comp)
			}
		},
	}
}

func (h *Handler) objectProps(_ *requestContext, ev *model.Event) map[string]propFill {
	return map[string]propFill{
		"resourcetype":   func(p *etree.Element) { p.CreateElement("D:resourcetype") },
		"displayname":    textProp("D:displayname", ev.UID+".ics"),
		"getetag":        textProp("D:getetag", ETag(ev)),
		"getcontenttype": textProp("D:getcontenttype", mimeCalendar),
	}
}

func textProp(tag, value string) propFill {
	return func(p *etree.Element) {
		p.CreateElement(tag).SetText(value)
	}
}

func hrefProp(tag, href string) propFill {
	return func(p *etree.Element) {
		p.CreateElement(tag).CreateElement("D:href").SetText(href)
	}
}

// lookup returns the fill for one requested prop name if the resource
// supports it.
func lookup(props map[string]propFill, name string) mo.Option[propFill] {
	if fill, ok := props[name]; ok {
		return mo.Some(fill)
	}
	return mo.None[propFill]()
}

// writeMultistatus renders the accumulated responses, splitting each
// resource's props into found (200) and not-found (404) propstats.
func writeMultistatus(w http.ResponseWriter, ms *multistatus, names []string) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement("D:multistatus")
	root.CreateAttr("xmlns:D", nsDAV)
	root.CreateAttr("xmlns:C", nsCalDAV)
	root.CreateAttr("xmlns:CS", nsCS)
	root.CreateAttr("xmlns:A", nsApple)

	for _, resp := range ms.responses {
		el := root.CreateElement("D:response")
		el.CreateElement("D:href").SetText(resp.href)

		found := el.CreateElement("D:propstat")
		foundProp := found.CreateElement("D:prop")
		var missing []string
		for _, name := range names {
			fill, ok := lookup(resp.props, name).Get()
			if !ok {
				missing = append(missing, name)
				continue
			}
			fill(foundProp)
		}
		found.CreateElement("D:status").SetText("HTTP/1.1 200 OK")

		if len(missing) > 0 {
			nf := el.CreateElement("D:propstat")
			nfProp := nf.CreateElement("D:prop")
			for _, name := range missing {
				nfProp.CreateElement(name)
			}
			nf.CreateElement("D:status").SetText("HTTP/1.1 404 Not Found")
		}
	}

	w.Header().Set("Content-Type", mimeXML)
	w.WriteHeader(http.StatusMultiStatus)
	doc.Indent(2)
	if _, err := doc.WriteTo(w); err != nil {
		// Response already partially written; nothing left to do.
		return
	}
}
