package db

import "github.com/Masterminds/squirrel"

// SQL is the statement builder shared by repositories with dynamic filters.
var SQL = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// EscapeLike escapes the LIKE wildcards in s so user input matches literally.
func EscapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '\\', '%', '_':
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
