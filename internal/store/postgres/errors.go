package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfeidau/loadboard/internal/store"
)

// mapPostgresError converts driver errors into the store sentinels. Errors
// are matched on SQLSTATE class so new codes within a class keep working.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch {
	case pgErr.Code == pgerrcode.UniqueViolation:
		// only the items primary key is unique
		return store.ErrAlreadyExists

	case pgerrcode.IsInsufficientResources(pgErr.Code):
		return fmt.Errorf("%w: %s", store.ErrThrottled, pgErr.Message)

	case pgerrcode.IsTransactionRollback(pgErr.Code):
		return fmt.Errorf("transaction rolled back (%s): %w", pgErr.Code, err)

	case pgerrcode.IsConnectionException(pgErr.Code),
		pgerrcode.IsOperatorIntervention(pgErr.Code):
		return fmt.Errorf("database unavailable (%s): %w", pgErr.Code, err)

	default:
		return fmt.Errorf("postgres error %s on %s: %w", pgErr.Code, pgErr.TableName, err)
	}
}
