// Package testing provides test utilities and database setup for testing the counter store
package testing

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/amirphl/counter-app/models"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDBConfig holds configuration for test database connections
type TestDBConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	SSLMode  string
}

// GetTestDBConfig loads test database configuration from environment variables.
// SQLite in memory is used unless TEST_DB_DRIVER=postgres.
func GetTestDBConfig() *TestDBConfig {
	return &TestDBConfig{
		Driver:   getEnv("TEST_DB_DRIVER", "sqlite"),
		Host:     getEnv("TEST_DB_HOST", "localhost"),
		Port:     getEnvAsInt("TEST_DB_PORT", 5432),
		User:     getEnv("TEST_DB_USER", "postgres"),
		Password: getEnv("TEST_DB_PASSWORD", "postgres"),
		SSLMode:  getEnv("TEST_DB_SSL_MODE", "disable"),
	}
}

// TestDB represents a test database instance
type TestDB struct {
	DB     *gorm.DB
	Name   string
	config *TestDBConfig
}

// SetupTestDB creates a new test database with a unique name and migrates it
func SetupTestDB() (*TestDB, error) {
	config := GetTestDBConfig()
	dbName := fmt.Sprintf("counter_test_%d_%d", time.Now().Unix(), rand.Intn(10000))

	var (
		db  *gorm.DB
		err error
	)
	switch config.Driver {
	case "postgres":
		db, err = setupPostgres(config, dbName)
	default:
		db, err = setupSQLite()
	}
	if err != nil {
		return nil, err
	}

	tdb := &TestDB{DB: db, Name: dbName, config: config}
	if err := models.AutoMigrate(db); err != nil {
		_ = tdb.TeardownTestDB()
		return nil, fmt.Errorf("failed to migrate test database %s: %w", dbName, err)
	}
	return tdb, nil
}

// setupSQLite opens a private in-memory database. A single connection keeps
// the database alive for the lifetime of the TestDB.
func setupSQLite() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	return db, nil
}

func setupPostgres(config *TestDBConfig, dbName string) (*gorm.DB, error) {
	adminDB, err := gorm.Open(postgres.Open(config.dsn("")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer func() {
		if sqlDB, err := adminDB.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	if err := adminDB.Exec(fmt.Sprintf("CREATE DATABASE %s", dbName)).Error; err != nil {
		return nil, fmt.Errorf("failed to create test database %s: %w", dbName, err)
	}

	testDB, err := gorm.Open(postgres.Open(config.dsn(dbName)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database %s: %w", dbName, err)
	}
	return testDB, nil
}

func (c *TestDBConfig) dsn(dbName string) string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.SSLMode)
	if dbName != "" {
		dsn += " dbname=" + dbName
	}
	return dsn
}

// TeardownTestDB drops the test database and closes connections
func (tdb *TestDB) TeardownTestDB() error {
	if tdb.DB == nil {
		return nil
	}

	if sqlDB, err := tdb.DB.DB(); err == nil {
		sqlDB.Close()
	}

	if tdb.config.Driver != "postgres" {
		return nil
	}

	adminDB, err := gorm.Open(postgres.Open(tdb.config.dsn("")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Printf("Warning: failed to connect to PostgreSQL for cleanup: %v", err)
		return err
	}
	defer func() {
		sqlDB, _ := adminDB.DB()
		sqlDB.Close()
	}()

	err = adminDB.Exec(fmt.Sprintf(
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = '%s' AND pid <> pg_backend_pid()",
		tdb.Name)).Error
	if err != nil {
		log.Printf("Warning: failed to terminate connections to test database %s: %v", tdb.Name, err)
	}

	if err := adminDB.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s", tdb.Name)).Error; err != nil {
		log.Printf("Warning: failed to drop test database %s: %v", tdb.Name, err)
		return err
	}

	return nil
}

// ClearAllTables removes all data from tables while preserving structure
func (tdb *TestDB) ClearAllTables() error {
	if err := tdb.DB.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Counter{}).Error; err != nil {
		return fmt.Errorf("failed to clear counters: %w", err)
	}
	return nil
}

// InsertTestCounter stores a counter row with the given value directly
func (tdb *TestDB) InsertTestCounter(name string, value int64) (*models.Counter, error) {
	counter := &models.Counter{Name: name, Value: value}
	if err := tdb.DB.Create(counter).Error; err != nil {
		return nil, fmt.Errorf("failed to insert test counter %s: %w", name, err)
	}
	return counter, nil
}

// SetTestCounterValue overwrites the stored value of an existing counter
func (tdb *TestDB) SetTestCounterValue(name string, value int64) error {
	return tdb.DB.Model(&models.Counter{}).Where("name = ?", name).Update("value", value).Error
}

// CounterRow reads a counter row straight from the table, bypassing the store
func (tdb *TestDB) CounterRow(name string) (*models.Counter, error) {
	var row models.Counter
	if err := tdb.DB.Where("name = ?", name).Take(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// CountRows returns how many rows exist for name
func (tdb *TestDB) CountRows(name string) (int64, error) {
	var n int64
	err := tdb.DB.Model(&models.Counter{}).Where("name = ?", name).Count(&n).Error
	return n, err
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// TestWithDB is a helper function that sets up a test database, runs the test function, and cleans up
func TestWithDB(testFunc func(*TestDB) error) error {
	testDB, err := SetupTestDB()
	if err != nil {
		return fmt.Errorf("failed to setup test database: %w", err)
	}
	defer func() {
		if cleanupErr := testDB.TeardownTestDB(); cleanupErr != nil {
			log.Printf("Warning: failed to cleanup test database: %v", cleanupErr)
		}
	}()

	return testFunc(testDB)
}

// CreateTestContext creates a context for testing
func CreateTestContext() context.Context {
	return context.Background()
}
