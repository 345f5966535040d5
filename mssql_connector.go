// file: mssql_connector.go
package inventory

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
)

type MSSQLConnector struct {
	baseConnector
}

func newMSSQLConnector(cfg ConnectionConfig) (*MSSQLConnector, error) {
	db, err := openDatabase("sqlserver", mssqlDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open mssql connection: %w", err)
	}
	return &MSSQLConnector{baseConnector{cfg: cfg, db: db, quote: quoteMSSQLIdent}}, nil
}

func mssqlDSN(cfg ConnectionConfig) string {
	if cfg.Port == 0 {
		cfg.Port = 1433
	}
	encrypt := "true"
	if strings.ToLower(strings.TrimSpace(cfg.SSLMode)) == "disable" {
		encrypt = "disable"
	}
	query := url.Values{}
	query.Set("database", cfg.Database)
	query.Set("encrypt", encrypt)
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		RawQuery: query.Encode(),
	}
	return u.String()
}

func (c *MSSQLConnector) TestConnection(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mssql: %w", err)
	}
	return nil
}

func quoteMSSQLIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
