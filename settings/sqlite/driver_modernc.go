//go:build !cgo_sqlite

package sqlite

import (
	"strings"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// dsn appends each pragma to path as _pragma=name(value), the form
// modernc.org/sqlite understands.
func dsn(path string, pragmas [][2]string) string {
	var b strings.Builder
	b.WriteString(path)
	for i, p := range pragmas {
		sep := "&"
		if i == 0 {
			sep = "?"
		}
		b.WriteString(sep + "_pragma=" + p[0] + "(" + p[1] + ")")
	}
	return b.String()
}
