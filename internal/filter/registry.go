package filter

import "fmt"

// Field maps a filterable name onto a column and its semantic type.
type Field struct {
	Column string
	Kind   Kind
}

// JoinStep is one SQL join hop: JOIN Table AS <alias> ON
// <alias>.Column = <parentAlias>.ParentCol.
type JoinStep struct {
	Table     string
	Column    string
	ParentCol string
}

// Relation describes a navigable relationship: the target entity and the
// join steps required to reach it. Multi-step relations (many-to-many) join
// through their association table.
type Relation struct {
	Target string
	Steps  []JoinStep
}

// Entity describes one filterable root: its table, fields and relations.
// Descriptors are static and built once at startup, so the dotted-path
// grammar never falls back to stringly-typed runtime lookups.
type Entity struct {
	Name      string
	Table     string
	Fields    map[string]Field
	Relations map[string]Relation
}

// Registry maps entity names to their descriptors.
type Registry map[string]*Entity

// Entity returns the descriptor for name, or nil if unknown.
func (r Registry) Entity(name string) *Entity {
	return r[name]
}

// renderJoins expands a relation into SQL join clauses starting from
// parentAlias. The final hop is aliased with the relation's name so that
// subsequent rules can reference its columns, and so two relations
// targeting the same table don't collide.
func renderJoins(name string, rel Relation, parentAlias string) ([]string, string) {
	joins := make([]string, 0, len(rel.Steps))
	alias := parentAlias
	for i, s := range rel.Steps {
		stepAlias := s.Table
		if i == len(rel.Steps)-1 {
			stepAlias = name
		}
		if stepAlias == s.Table {
			joins = append(joins, fmt.Sprintf("JOIN %s ON %s.%s = %s.%s",
				s.Table, s.Table, s.Column, alias, s.ParentCol))
		} else {
			joins = append(joins, fmt.Sprintf("JOIN %s AS %s ON %s.%s = %s.%s",
				s.Table, stepAlias, stepAlias, s.Column, alias, s.ParentCol))
		}
		alias = stepAlias
	}
	return joins, alias
}

// DefaultRegistry builds the descriptor set for the calendaring schema.
func DefaultRegistry() Registry {
	events := &Entity{
		Name:  "events",
		Table: "events",
		Fields: map[string]Field{
			"id":             {Column: "id", Kind: KindInt},
			"uid":            {Column: "uid", Kind: KindString},
			"title":          {Column: "title", Kind: KindString},
			"description":    {Column: "description", Kind: KindString},
			"date":           {Column: "date", Kind: KindTime},
			"end_date":       {Column: "end_date", Kind: KindTime},
			"isAllDay":       {Column: "is_all_day", Kind: KindBool},
			"is_task":        {Column: "is_task", Kind: KindBool},
			"startTime":      {Column: "start_time", Kind: KindString},
			"endTime":        {Column: "end_time", Kind: KindString},
			"color":          {Column: "color", Kind: KindString},
			"location":       {Column: "location", Kind: KindString},
			"status":         {Column: "status", Kind: KindString},
			"recurring_rule": {Column: "recurring_rule", Kind: KindString},
			"calendar_id":    {Column: "calendar_id", Kind: KindInt},
			"created_by":     {Column: "created_by", Kind: KindInt},
			"reminders_sent": {Column: "reminders_sent", Kind: KindInt},
		},
		Relations: map[string]Relation{
			"calendar": {
				Target: "calendars",
				Steps:  []JoinStep{{Table: "calendars", Column: "id", ParentCol: "calendar_id"}},
			},
			"users": {
				Target: "users",
				Steps: []JoinStep{
					{Table: "user_events", Column: "event_id", ParentCol: "id"},
					{Table: "users", Column: "id", ParentCol: "user_id"},
				},
			},
		},
	}

	calendars := &Entity{
		Name:  "calendars",
		Table: "calendars",
		Fields: map[string]Field{
			"id":                    {Column: "id", Kind: KindInt},
			"name":                  {Column: "name", Kind: KindString},
			"color":                 {Column: "color", Kind: KindString},
			"visible":               {Column: "visible", Kind: KindBool},
			"is_private":            {Column: "is_private", Kind: KindBool},
			"description":           {Column: "description", Kind: KindString},
			"owner_id":              {Column: "owner_id", Kind: KindInt},
			"notification_type":     {Column: "notification_type", Kind: KindString},
			"notify_before_minutes": {Column: "notify_before_minutes", Kind: KindInt},
			"notify_repeats":        {Column: "notify_repeats", Kind: KindInt},
		},
		Relations: map[string]Relation{
			"owner": {
				Target: "users",
				Steps:  []JoinStep{{Table: "users", Column: "id", ParentCol: "owner_id"}},
			},
			"events": {
				Target: "events",
				Steps:  []JoinStep{{Table: "events", Column: "calendar_id", ParentCol: "id"}},
			},
		},
	}

	users := &Entity{
		Name:  "users",
		Table: "users",
		Fields: map[string]Field{
			"id":           {Column: "id", Kind: KindInt},
			"name":         {Column: "name", Kind: KindString},
			"email":        {Column: "email", Kind: KindString},
			"phone_number": {Column: "phone_number", Kind: KindString},
			"profile_id":   {Column: "profile_id", Kind: KindInt},
			"last_login":   {Column: "last_login", Kind: KindTime},
		},
		Relations: map[string]Relation{
			"profile": {
				Target: "profiles",
				Steps:  []JoinStep{{Table: "user_profiles", Column: "id", ParentCol: "profile_id"}},
			},
			"events": {
				Target: "events",
				Steps: []JoinStep{
					{Table: "user_events", Column: "user_id", ParentCol: "id"},
					{Table: "events", Column: "id", ParentCol: "event_id"},
				},
			},
		},
	}

	profiles := &Entity{
		Name:  "profiles",
		Table: "user_profiles",
		Fields: map[string]Field{
			"id":   {Column: "id", Kind: KindInt},
			"name": {Column: "name", Kind: KindString},
		},
		Relations: map[string]Relation{
			"permissions": {
				Target: "permissions",
				Steps:  []JoinStep{{Table: "permissions", Column: "profile_id", ParentCol: "id"}},
			},
		},
	}

	permissions := &Entity{
		Name:  "permissions",
		Table: "permissions",
		Fields: map[string]Field{
			"id":         {Column: "id", Kind: KindInt},
			"profile_id": {Column: "profile_id", Kind: KindInt},
			"entity":     {Column: "entity", Kind: KindString},
			"can_view":   {Column: "can_view", Kind: KindBool},
			"can_create": {Column: "can_create", Kind: KindBool},
			"can_update": {Column: "can_update", Kind: KindBool},
			"can_delete": {Column: "can_delete", Kind: KindBool},
		},
		Relations: map[string]Relation{},
	}

	logs := &Entity{
		Name:  "notification_logs",
		Table: "notification_logs",
		Fields: map[string]Field{
			"id":         {Column: "id", Kind: KindInt},
			"user_id":    {Column: "user_id", Kind: KindInt},
			"event_id":   {Column: "event_id", Kind: KindInt},
			"channel":    {Column: "channel", Kind: KindString},
			"status":     {Column: "status", Kind: KindString},
			"content":    {Column: "content", Kind: KindString},
			"is_read":    {Column: "is_read", Kind: KindBool},
			"created_at": {Column: "created_at", Kind: KindTime},
		},
		Relations: map[string]Relation{
			"user": {
				Target: "users",
				Steps:  []JoinStep{{Table: "users", Column: "id", ParentCol: "user_id"}},
			},
			"event": {
				Target: "events",
				Steps:  []JoinStep{{Table: "events", Column: "id", ParentCol: "event_id"}},
			},
		},
	}

	return Registry{
		events.Name:      events,
		calendars.Name:   calendars,
		users.Name:       users,
		profiles.Name:    profiles,
		permissions.Name: permissions,
		logs.Name:        logs,
	}
}
