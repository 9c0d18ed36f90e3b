package reconcile

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// MySQL: ER_LOCK_DEADLOCK, ER_LOCK_WAIT_TIMEOUT.
const (
	mysqlDeadlock        = 1213
	mysqlLockWaitTimeout = 1205
)

// Postgres SQLSTATE: serialization_failure, deadlock_detected,
// lock_not_available.
var pgTransientCodes = map[string]struct{}{
	"40001": {},
	"40P01": {},
	"55P03": {},
}

// IsTransientStoreError reports whether err looks like lock contention
// that a later retry can clear. It is a heuristic: a false negative
// leaves an inspectable failed record, a false positive causes one
// extra redelivery against an idempotent engine.
func IsTransientStoreError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := pgTransientCodes[pgErr.Code]; ok {
			return true
		}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		if myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockWaitTimeout {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "deadlock") {
		return true
	}
	if strings.Contains(msg, "lock wait timeout") {
		return true
	}
	if strings.Contains(msg, "serialization failure") {
		return true
	}
	if strings.Contains(msg, "40001") {
		return true
	}

	return false
}
