// Package rawsql guards caller-written SQL before it reaches a backend.
//
// Raw statements must carry their values as bound parameters written as "?".
// Check rejects text whose placeholders do not match the supplied arguments,
// stacked statements and backend-native placeholders, which is what string
// concatenation of user input usually produces.
package rawsql

import (
	"fmt"
	"strings"

	"cookbook/internal/core/apperror"
)

// Check validates sql against the number of bound arguments.
func Check(sql string, nargs int) error {
	if strings.TrimSpace(sql) == "" {
		return apperror.NewUnsafeSQL(sql, "empty statement")
	}
	info, err := scan(sql)
	if err != nil {
		return apperror.NewUnsafeSQL(sql, err.Error())
	}
	if info.stacked {
		return apperror.NewUnsafeSQL(sql, "multiple statements are not allowed")
	}
	if info.native {
		return apperror.NewUnsafeSQL(sql, "use ? placeholders for parameters")
	}
	if info.placeholders != nargs {
		return apperror.NewUnsafeSQL(sql, fmt.Sprintf("statement has %d placeholders but %d arguments were given", info.placeholders, nargs))
	}
	return nil
}

// TrimTerminator removes trailing semicolons and whitespace.
func TrimTerminator(sql string) string {
	s := strings.TrimSpace(sql)
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(s[:len(s)-1])
	}
	return s
}

type scanInfo struct {
	placeholders int
	stacked      bool
	native       bool
}

// scan walks sql outside of quoted strings, quoted identifiers and comments.
// "??" is an escaped literal question mark and is not counted.
func scan(sql string) (scanInfo, error) {
	var info scanInfo
	terminated := false
	n := len(sql)

	for i := 0; i < n; i++ {
		c := sql[i]
		switch {
		case c == '\'' || c == '"':
			j := closing(sql, i+1, c)
			if j < 0 {
				return info, fmt.Errorf("unterminated quote at offset %d", i)
			}
			if terminated {
				info.stacked = true
			}
			i = j
		case c == '-' && i+1 < n && sql[i+1] == '-':
			j := strings.IndexByte(sql[i:], '\n')
			if j < 0 {
				return info, nil
			}
			i += j
		case c == '/' && i+1 < n && sql[i+1] == '*':
			j := strings.Index(sql[i+2:], "*/")
			if j < 0 {
				return info, fmt.Errorf("unterminated comment at offset %d", i)
			}
			i += j + 3
		case c == ';':
			terminated = true
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
		default:
			if terminated {
				info.stacked = true
			}
			switch {
			case c == '?' && i+1 < n && sql[i+1] == '?':
				i++
			case c == '?':
				info.placeholders++
			case c == '$' && i+1 < n && sql[i+1] >= '0' && sql[i+1] <= '9':
				info.native = true
			}
		}
	}
	return info, nil
}

// closing returns the index of the quote that ends a literal started before
// from; doubled quotes are escapes.
func closing(sql string, from int, quote byte) int {
	for i := from; i < len(sql); i++ {
		if sql[i] != quote {
			continue
		}
		if i+1 < len(sql) && sql[i+1] == quote {
			i++
			continue
		}
		return i
	}
	return -1
}
