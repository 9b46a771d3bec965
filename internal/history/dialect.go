package history

import (
	"strconv"
	"strings"
)

// Driver names accepted in Config.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// dialect holds the statements that differ between backends.
type dialect struct {
	name       string
	sqlDriver  string
	positional bool // $1, $2 placeholders instead of ?

	createHistory  string
	createMessages string
	tableExists    string
}

var sqliteDialect = dialect{
	name:      DriverSQLite,
	sqlDriver: "sqlite",
	createHistory: `CREATE TABLE IF NOT EXISTS competency_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	skill TEXT,
	level INTEGER CHECK (level BETWEEN 0 AND 5),
	justification TEXT,
	timestamp DATETIME
)`,
	createMessages: `CREATE TABLE IF NOT EXISTS message_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	message TEXT NOT NULL,
	created_at DATETIME
)`,
	tableExists: `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
}

var postgresDialect = dialect{
	name:       DriverPostgres,
	sqlDriver:  "pgx",
	positional: true,
	createHistory: `CREATE TABLE IF NOT EXISTS competency_history (
	id SERIAL PRIMARY KEY,
	skill VARCHAR,
	level INTEGER CHECK (level BETWEEN 0 AND 5),
	justification VARCHAR,
	timestamp TIMESTAMP
)`,
	createMessages: `CREATE TABLE IF NOT EXISTS message_history (
	id SERIAL PRIMARY KEY,
	session_id TEXT NOT NULL,
	message TEXT NOT NULL,
	created_at TIMESTAMP
)`,
	tableExists: `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?`,
}

// dialectFor picks the backend from an explicit driver name or, failing
// that, from the DSN scheme.
func dialectFor(driver, dsn string) (dialect, bool) {
	switch strings.ToLower(driver) {
	case DriverSQLite, "sqlite3":
		return sqliteDialect, true
	case DriverPostgres, "postgresql", "pgx":
		return postgresDialect, true
	case "":
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			return postgresDialect, true
		}
		return sqliteDialect, true
	}
	return dialect{}, false
}

// rebind rewrites ? placeholders to $n for positional dialects.
func (d dialect) rebind(query string) string {
	if !d.positional {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
