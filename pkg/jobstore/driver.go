package jobstore

import (
	"database/sql"

	sqlite "modernc.org/sqlite"
)

const driverSQLite = "exportd-sqlite"

func init() {
	sql.Register(driverSQLite, &sqlite.Driver{})
}
