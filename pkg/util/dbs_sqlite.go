package util

import (
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenDatabase 按驱动打开数据库，未指定 dsn 时使用内存 sqlite
func OpenDatabase(driver, dsn string, debug bool) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
	if debug {
		cfg.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}
	return createDatabaseInstance(cfg, driver, dsn)
}

func createDatabaseInstance(cfg *gorm.Config, driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	case "pg", "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	}
	if dsn == "" {
		dsn = "file:rescuedesk?mode=memory&cache=shared"
	}
	return gorm.Open(sqlite.Open(dsn), cfg)
}
