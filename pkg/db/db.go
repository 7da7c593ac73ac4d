package db

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"

	"github.com/datavault-ai/entity-backend/config"
)

var sharedDB *gorm.DB
var once sync.Once

func dsnFor(username, password, host string, port int) string {
	databaseConfig := config.Config.Database
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=%s",
		host,
		username,
		password,
		databaseConfig.Name,
		port,
		databaseConfig.TimeZone,
	)
}

// GetConnection opens a new connection pool against the configured primary,
// with the replica registered for read traffic when one is configured.
func GetConnection() *gorm.DB {
	databaseConfig := config.Config.Database
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsnFor(databaseConfig.Username, databaseConfig.Password, databaseConfig.Host, databaseConfig.Port),
		PreferSimpleProtocol: true, // disables implicit prepared statement usage
	}), &gorm.Config{
		QueryFields: true, // QueryFields mode will select by all fields' name for current model
	})
	if err != nil {
		panic("could not open database connection")
	}

	if databaseConfig.Replica.Host != "" {
		err = db.Use(dbresolver.Register(dbresolver.Config{
			Replicas: []gorm.Dialector{postgres.New(postgres.Config{
				DSN: dsnFor(
					databaseConfig.Replica.Username,
					databaseConfig.Replica.Password,
					databaseConfig.Replica.Host,
					databaseConfig.Replica.Port,
				),
				PreferSimpleProtocol: true,
			})},
		}))
		if err != nil {
			panic("could not register database replica")
		}
	}

	sqlDB, _ := db.DB()

	// SetMaxIdleConns sets the maximum number of connections in the idle connection pool.
	sqlDB.SetMaxIdleConns(databaseConfig.Pool.IdleConnections)
	// SetMaxOpenConns sets the maximum number of open connections to the database.
	sqlDB.SetMaxOpenConns(databaseConfig.Pool.MaxConnections)
	// SetConnMaxLifetime sets the maximum amount of time a connection may be reused.
	sqlDB.SetConnMaxLifetime(time.Duration(databaseConfig.Pool.ConnLifeTime))

	return db
}

// GetSharedConnection returns a process-wide connection, opened on first use.
func GetSharedConnection() *gorm.DB {
	once.Do(func() {
		sharedDB = GetConnection()
	})
	return sharedDB
}

// Close closes the database connection
func Close(db *gorm.DB) {
	if db != nil {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	}
}
