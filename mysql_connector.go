// file: mysql_connector.go
package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

type MySQLConnector struct {
	baseConnector
}

func newMySQLConnector(cfg ConnectionConfig) (*MySQLConnector, error) {
	db, err := openDatabase("mysql", mysqlDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}
	return &MySQLConnector{baseConnector{cfg: cfg, db: db, quote: quoteMySQLIdent}}, nil
}

func mysqlDSN(cfg ConnectionConfig) string {
	if cfg.Port == 0 {
		cfg.Port = 3306
	}
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = cfg.Database
	mc.ParseTime = true
	switch sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode)); {
	case sslMode == "disable":
		mc.TLSConfig = "false"
	case sslMode != "":
		mc.TLSConfig = "true"
	}
	return mc.FormatDSN()
}

func (c *MySQLConnector) TestConnection(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}
	return nil
}

func quoteMySQLIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
