package datastores

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/lib/pq"
	"golang.org/x/text/cases"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// dialect isolates what differs between the SQL backends.
type dialect struct {
	name   string
	driver string
	// numbered reports whether placeholders are $1, $2... instead of ?.
	numbered bool
	// uniqueViolation returns the column of a violated unique constraint.
	uniqueViolation func(error) (string, bool)
	// fold is the SQL function lowering a column for case-insensitive search,
	// foldText lowers the searched text the same way.
	fold     string
	foldText func(string) string
}

var (
	sqliteDialect = dialect{
		name:            "sqlite",
		driver:          "sqlite",
		uniqueViolation: sqliteUniqueViolation,
		fold:            "casefold",
		foldText:        foldString,
	}
	postgresDialect = dialect{
		name:            "postgres",
		driver:          "postgres",
		numbered:        true,
		uniqueViolation: postgresUniqueViolation,
		fold:            "lower",
		foldText:        strings.ToLower,
	}
)

// rebind rewrites ? placeholders of query for the dialect.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var uniqueColumns = []string{"email", "phone_number"}

func sqliteUniqueViolation(err error) (string, bool) {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return "", false
	}
	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
	default:
		return "", false
	}
	// message reads "... UNIQUE constraint failed: <table>.<column> (2067)"
	message := sqliteErr.Error()
	for _, column := range uniqueColumns {
		if strings.Contains(message, "."+column) {
			return column, true
		}
	}
	return "", true
}

func postgresUniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code.Name() != "unique_violation" {
		return "", false
	}
	// constraints are named <table>_<column>_key
	for _, column := range uniqueColumns {
		if strings.HasSuffix(pqErr.Constraint, "_"+column+"_key") {
			return column, true
		}
	}
	return "", true
}

func foldString(s string) string { return cases.Fold().String(s) }

// registerCasefold adds casefold(text) to every sqlite connection, the
// builtin lower() only handles ASCII.
var registerCasefold = sync.OnceValue(func() error {
	return msqlite.RegisterDeterministicScalarFunction("casefold", 1, casefold)
})

func casefold(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return foldString(v), nil
	case []byte:
		return foldString(string(v)), nil
	default:
		return nil, fmt.Errorf("casefold: unsupported argument %T", v)
	}
}
