package rawsql

import (
	"regexp"
	"strings"
)

// Op is the kind of a raw statement.
type Op string

const (
	OpSelect Op = "SELECT"
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
	OpOther  Op = "OTHER"
)

// Statement describes a recognized top-level statement.
type Statement struct {
	Op           Op
	Table        string
	HasReturning bool
}

// Mutates reports whether the statement changes data.
func (s Statement) Mutates() bool {
	return s.Op == OpInsert || s.Op == OpUpdate || s.Op == OpDelete
}

var (
	reSelect    = regexp.MustCompile(`(?is)^\s*(?:with\b.*?\)\s*)?select\b`)
	reInsert    = regexp.MustCompile(`(?is)^\s*(?:with\b.*?\)\s*)?insert\s+into\s+([^\s(]+)`)
	reUpdate    = regexp.MustCompile(`(?is)^\s*(?:with\b.*?\)\s*)?update\s+([^\s]+)(?:\s+(?:as\s+)?[^\s]+)?\s+set\b`)
	reDelete    = regexp.MustCompile(`(?is)^\s*(?:with\b.*?\)\s*)?delete\s+from\s+([^\s;]+)`)
	reReturning = regexp.MustCompile(`(?is)\breturning\b`)
)

// Classify recognizes the operation and target table of sql.
func Classify(sql string) Statement {
	q := strings.TrimSpace(sql)
	ret := reReturning.MatchString(q)
	if m := reInsert.FindStringSubmatch(q); len(m) == 2 {
		return Statement{Op: OpInsert, Table: unquote(m[1]), HasReturning: ret}
	}
	if m := reUpdate.FindStringSubmatch(q); len(m) == 2 {
		return Statement{Op: OpUpdate, Table: unquote(m[1]), HasReturning: ret}
	}
	if m := reDelete.FindStringSubmatch(q); len(m) == 2 {
		return Statement{Op: OpDelete, Table: unquote(m[1]), HasReturning: ret}
	}
	if reSelect.MatchString(q) {
		return Statement{Op: OpSelect}
	}
	return Statement{Op: OpOther}
}

func unquote(ident string) string {
	return strings.ToLower(strings.Trim(ident, "\"`[]"))
}
