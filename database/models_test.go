package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
)

// stubConnector satisfies sql.OpenDB without ever dialing anything; pool
// limits can be set and inspected with no live database.
type stubConnector struct{}

func (stubConnector) Connect(context.Context) (driver.Conn, error) {
	return nil, errors.New("no live connections in tests")
}

func (stubConnector) Driver() driver.Driver { return nil }

func TestConfigurePool(t *testing.T) {
	sqlDB := sql.OpenDB(stubConnector{})
	defer sqlDB.Close()

	configurePool(sqlDB)

	if got := sqlDB.Stats().MaxOpenConnections; got != 5 {
		t.Errorf("max open connections = %d, want 5", got)
	}
}
