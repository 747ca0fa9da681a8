package caldav

import (
	"fmt"
	"strings"
)

// ResourceType identifies what a CalDAV URL path points at.
type ResourceType int

const (
	ResourceRoot ResourceType = iota
	ResourcePrincipal
	ResourceCollection
	ResourceObject
)

// String returns the string representation of the ResourceType.
func (rt ResourceType) String() string {
	switch rt {
	case ResourcePrincipal:
		return "principal"
	case ResourceCollection:
		return "collection"
	case ResourceObject:
		return "object"
	default:
		return "root"
	}
}

// Resource is a parsed CalDAV path. The tree is
// /{user-email}/{calendar-name}/{event-uid}.ics, mirroring the JSON API's
// ownership model: calendars belong to a user, events to a calendar.
type Resource struct {
	Type         ResourceType
	UserEmail    string
	CalendarName string
	ObjectUID    string
}

// ParsePath parses a path relative to the handler prefix.
func ParsePath(path string) (Resource, error) {
	parts := []string{}
	for _, p := range strings.Split(strings.Trim(path, "/"), "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}

	switch len(parts) {
	case 0:
		return Resource{Type: ResourceRoot}, nil
	case 1:
		return Resource{Type: ResourcePrincipal, UserEmail: parts[0]}, nil
	case 2:
		return Resource{Type: ResourceCollection, UserEmail: parts[0], CalendarName: parts[1]}, nil
	case 3:
		uid := strings.TrimSuffix(parts[2], ".ics")
		if uid == "" {
			return Resource{}, fmt.Errorf("invalid object name %q", parts[2])
		}
		return Resource{
			Type:         ResourceObject,
			UserEmail:    parts[0],
			CalendarName: parts[1],
			ObjectUID:    uid,
		}, nil
	default:
		return Resource{}, fmt.Errorf("path %q is too deep", path)
	}
}

// Href renders the resource's URL path under prefix.
func (r Resource) Href(prefix string) string {
	switch r.Type {
	case ResourcePrincipal:
		return prefix + r.UserEmail + "/"
	case ResourceCollection:
		return prefix + r.UserEmail + "/" + r.CalendarName + "/"
	case ResourceObject:
		return prefix + r.UserEmail + "/" + r.CalendarName + "/" + r.ObjectUID + ".ics"
	default:
		return prefix
	}
}
