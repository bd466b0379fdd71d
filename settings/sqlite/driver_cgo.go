//go:build cgo_sqlite

package sqlite

import (
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3"

// dsn appends each pragma to path as _name=value, the form
// mattn/go-sqlite3 understands.
func dsn(path string, pragmas [][2]string) string {
	var b strings.Builder
	b.WriteString(path)
	for i, p := range pragmas {
		sep := "&"
		if i == 0 {
			sep = "?"
		}
		b.WriteString(sep + "_" + p[0] + "=" + p[1])
	}
	return b.String()
}
