// Package filter compiles the compact textual filter grammar used by every
// list endpoint into joined, typed SQL predicates.
//
// Grammar: groups separated by '$' are ANDed together; a group containing
// '|' ORs its '|'-separated rules. Each rule is field+operator+value. Field
// may be a dotted path navigating relationships, each hop producing a join
// that is created at most once per compiled query.
//
// Malformed rules, unknown fields, unresolvable hops, and values that fail
// type coercion drop only the offending rule. This best-effort policy is
// deliberate: a filter degrades to its valid rules rather than failing the
// whole query.
package filter

import (
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"
)

// Supported rule operators.
const (
	OpEq = "eq"
	OpNe = "ne"
	OpLt = "lt"
	OpLe = "le"
	OpGt = "gt"
	OpGe = "ge"
	OpCt = "ct"
	OpSw = "sw"
	OpEw = "ew"
	OpIn = "in"
)

// Predicate is a compiled filter: the joins it needs and one SQL condition
// per group. The zero value is the unconstrained predicate.
type Predicate struct {
	joins []string
	conds []condition
}

type condition struct {
	sql  string
	args []any
}

// Apply attaches the predicate's joins and conditions to a gorm query.
func (p *Predicate) Apply(tx *gorm.DB) *gorm.DB {
	for _, j := range p.joins {
		tx = tx.Joins(j)
	}
	for _, c := range p.conds {
		tx = tx.Where(c.sql, c.args...)
	}
	return tx
}

// Joined reports whether the predicate required any relationship joins.
// Callers use this to decide whether result de-duplication is needed.
func (p *Predicate) Joined() bool { return len(p.joins) > 0 }

// Empty reports whether the predicate constrains anything at all.
func (p *Predicate) Empty() bool { return len(p.conds) == 0 }

// Compiler turns filter expressions into predicates against a registry of
// entity descriptors.
type Compiler struct {
	reg Registry
	log *slog.Logger
}

// NewCompiler creates a compiler over the given descriptor registry.
func NewCompiler(reg Registry, log *slog.Logger) *Compiler {
	if log == nil {
		log = slog.Default()
	}
	return &Compiler{reg: reg, log: log}
}

// Compile parses expr against the root entity. An empty expression or an
// unknown root yields the unconstrained predicate.
func (c *Compiler) Compile(expr string, rootEntity string) *Predicate {
	pred := &Predicate{}
	root := c.reg.Entity(rootEntity)
	if expr == "" || root == nil {
		return pred
	}

	// Joins already made for this query, keyed by relation name.
	joined := map[string]joinTarget{}

	for _, group := range strings.Split(expr, "$") {
		var rules []string
		or := strings.Contains(group, "|")
		if or {
			rules = strings.Split(group, "|")
		} else {
			rules = []string{group}
		}

		var parts []condition
		for _, rule := range rules {
			cond, ok := c.compileRule(rule, root, joined, pred)
			if !ok {
				continue
			}
			parts = append(parts, cond)
		}
		if len(parts) == 0 {
			continue
		}

		if or && len(parts) > 1 {
			frags := make([]string, len(parts))
			var args []any
			for i, p := range parts {
				frags[i] = p.sql
				args = append(args, p.args...)
			}
			pred.conds = append(pred.conds, condition{
				sql:  "(" + strings.Join(frags, " OR ") + ")",
				args: args,
			})
		} else {
			pred.conds = append(pred.conds, parts...)
		}
	}
	return pred
}

type joinTarget struct {
	alias  string
	entity *Entity
}

// compileRule resolves one field+operator+value rule, registering any joins
// its dotted path needs on pred. ok is false when the rule is dropped.
func (c *Compiler) compileRule(rule string, root *Entity, joined map[string]joinTarget, pred *Predicate) (condition, bool) {
	parts := strings.Split(rule, "+")
	if len(parts) != 3 {
		c.log.Debug("dropping malformed filter rule", "rule", rule)
		return condition{}, false
	}
	fieldPath, op, value := parts[0], parts[1], parts[2]

	alias := root.Table
	entity := root
	fieldName := fieldPath

	if strings.Contains(fieldPath, ".") {
		hops := strings.Split(fieldPath, ".")
		fieldName = hops[len(hops)-1]
		for _, relName := range hops[:len(hops)-1] {
			if t, ok := joined[relName]; ok {
				alias, entity = t.alias, t.entity
				continue
			}
			rel, ok := entity.Relations[relName]
			if !ok {
				c.log.Debug("dropping rule with unknown relation", "rule", rule, "relation", relName)
				return condition{}, false
			}
			target := c.reg.Entity(rel.Target)
			if target == nil {
				c.log.Debug("dropping rule with unresolvable relation target", "rule", rule, "target", rel.Target)
				return condition{}, false
			}
			joins, relAlias := renderJoins(relName, rel, alias)
			pred.joins = append(pred.joins, joins...)
			joined[relName] = joinTarget{alias: relAlias, entity: target}
			alias, entity = relAlias, target
		}
	}

	field, ok := entity.Fields[fieldName]
	if !ok {
		c.log.Debug("dropping rule with unknown field", "rule", rule, "field", fieldName)
		return condition{}, false
	}
	col := alias + "." + field.Column

	if op == OpIn {
		var list []any
		for _, elem := range strings.Split(value, ",") {
			v, err := Coerce(field.Kind, elem)
			if err != nil {
				c.log.Debug("dropping rule with uncoercible list element", "rule", rule, "element", elem)
				return condition{}, false
			}
			list = append(list, v)
		}
		return condition{sql: col + " IN ?", args: []any{list}}, true
	}

	converted, err := Coerce(field.Kind, value)
	if err != nil {
		c.log.Debug("dropping rule with uncoercible value", "rule", rule, "value", value)
		return condition{}, false
	}

	switch op {
	case OpEq:
		return condition{sql: col + " = ?", args: []any{converted}}, true
	case OpNe:
		return condition{sql: col + " <> ?", args: []any{converted}}, true
	case OpLt:
		return condition{sql: col + " < ?", args: []any{converted}}, true
	case OpLe:
		return condition{sql: col + " <= ?", args: []any{converted}}, true
	case OpGt:
		return condition{sql: col + " > ?", args: []any{converted}}, true
	case OpGe:
		return condition{sql: col + " >= ?", args: []any{converted}}, true
	case OpCt:
		return condition{sql: "LOWER(" + col + ") LIKE ?", args: []any{"%" + lowered(converted) + "%"}}, true
	case OpSw:
		return condition{sql: "LOWER(" + col + ") LIKE ?", args: []any{lowered(converted) + "%"}}, true
	case OpEw:
		return condition{sql: "LOWER(" + col + ") LIKE ?", args: []any{"%" + lowered(converted)}}, true
	default:
		c.log.Debug("dropping rule with unknown operator", "rule", rule, "operator", op)
		return condition{}, false
	}
}

func lowered(v any) string {
	return strings.ToLower(fmt.Sprintf("%v", v))
}
