package db

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/common"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/models"
)

type DB struct {
	Conn *gorm.DB
}

var (
	instance *DB
	once     sync.Once
)

// GetInstance opens the process-wide database once and exits on failure.
func GetInstance(dialector gorm.Dialector) *DB {
	once.Do(func() {
		var err error
		if instance, err = Open(dialector); err != nil {
			log.Fatal("Failed to open database: ", err)
		}
	})
	return instance
}

// Open connects and migrates a new database handle.
func Open(dialector gorm.Dialector) (*DB, error) {
	var appLogger = common.GetLogger()

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	appLogger.Info("Connected to database with dialector:", zap.String("dialector", dialector.Name()))

	if dialector.Name() == "sqlite" {
		// sqlite allows one writer; a single connection keeps writers queued
		// in database/sql instead of failing with SQLITE_BUSY
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, fmt.Errorf("get sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)

		if err := conn.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("enable sqlite foreign key support: %w", err)
		}
		if err := conn.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
			return nil, fmt.Errorf("set sqlite journal mode: %w", err)
		}
	}

	if err := conn.AutoMigrate(&models.Geofence{}, &models.Alert{}, &models.User{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	appLogger.Info("Database migration completed")

	return &DB{Conn: conn}, nil
}

func UseSqliteDialector() gorm.Dialector {
	var dbPath string
	var found bool
	if dbPath, found = os.LookupEnv(common.EnvKeyDbPath); !found {
		dbPath = "geoalert.db"
	}
	return sqlite.Open(dbPath)
}

func UseMemorySqliteDialector() gorm.Dialector {
	return sqlite.Open("file::memory:?cache=shared")
}

// UseIsolatedMemorySqliteDialector gives every caller its own named
// in-memory database, so tests do not see each other's rows.
func UseIsolatedMemorySqliteDialector() gorm.Dialector {
	return sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
}

func UsePostgresDialector() gorm.Dialector {
	return postgres.Open(os.Getenv(common.EnvKeyDbDSN))
}
