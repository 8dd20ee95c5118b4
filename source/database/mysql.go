package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const (
	MYSQL_CONN_MAX_LIFETIME = 5 * time.Minute
	MYSQL_MAX_OPEN_CONNS    = 10
	MYSQL_MAX_IDLE_CONNS    = 10
)

// OpenMySQL opens the pool for the legacy Laravel database, where user
// permission scopes still live.
func OpenMySQL(mysqlURI string) (*sql.DB, error) {
	mysqlDB, err := sql.Open("mysql", mysqlURI)
	if err != nil {
		return nil, fmt.Errorf("[MySQL] open: %w", err)
	}

	mysqlDB.SetConnMaxLifetime(MYSQL_CONN_MAX_LIFETIME)
	mysqlDB.SetMaxOpenConns(MYSQL_MAX_OPEN_CONNS)
	mysqlDB.SetMaxIdleConns(MYSQL_MAX_IDLE_CONNS)

	return mysqlDB, nil
}
