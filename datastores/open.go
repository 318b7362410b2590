package datastores

import (
	"context"
	"fmt"
	"strings"
)

// OpenContacts returns the [ContactsStore] of table for driver "memory", "sqlite" or "postgres".
// The returned close function releases the underlying database handle.
func OpenContacts(ctx context.Context, driver, dsn, table string) (ContactsStore, func() error, error) {
	switch strings.ToLower(driver) {
	case "memory":
		return NewContactsInmem(), func() error { return nil }, nil
	case "sqlite":
		s, err := OpenContactsSQLite(ctx, dsn, table)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "postgres":
		s, err := OpenContactsPostgres(ctx, dsn, table)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
