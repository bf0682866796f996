package factory

import (
	"fmt"

	"github.com/stackrun-dev/stackrun/internal/config"
	"github.com/stackrun-dev/stackrun/internal/journal"
	"github.com/stackrun-dev/stackrun/internal/journal/clickhouse"
	"github.com/stackrun-dev/stackrun/internal/journal/postgres"
	"github.com/stackrun-dev/stackrun/internal/journal/sqlite"
)

// New builds the configured journal sink. The off driver returns a nil
// sink without error; callers treat nil as journaling disabled.
func New(jc config.JournalConfig) (journal.Sink, error) {
	switch jc.Driver {
	case config.JournalOff:
		return nil, nil
	case config.JournalSqlite, "":
		return sqlite.New(jc.DSN)
	case config.JournalPostgres:
		return postgres.New(jc.DSN)
	case config.JournalClickHouse:
		return clickhouse.New(clickhouse.Params{
			Addr:     jc.ClickHouse.Addr,
			Database: jc.ClickHouse.Database,
			Username: jc.ClickHouse.Username,
			Password: jc.ClickHouse.Password,
			Table:    jc.ClickHouse.Table,
		})
	default:
		return nil, fmt.Errorf("unknown journal driver %q", jc.Driver)
	}
}
