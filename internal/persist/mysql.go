package persist

import (
	"context"
	"net"
	"time"

	"eventwall/internal/config"

	drv "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Snapshot is the persisted image of one activity. Payload holds the JSON of
// the kind-specific state without participant records.
type Snapshot struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Kind      string    `gorm:"size:16;index"`
	Code      string    `gorm:"size:32;index"`
	Status    string    `gorm:"size:16"`
	Title     string    `gorm:"size:255"`
	Payload   []byte    `gorm:"type:json"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (Snapshot) TableName() string { return "activity_snapshots" }

// DSN builds the driver connection string for cfg.
func DSN(cfg config.MySQL) string {
	c := drv.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(cfg.Host, cfg.Port)
	c.DBName = cfg.DBName
	c.ParseTime = true
	c.Loc = time.UTC
	c.Params = map[string]string{"charset": "utf8mb4"}
	return c.FormatDSN()
}

// Open connects to MySQL and makes sure the snapshot table exists.
func Open(cfg config.MySQL) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(DSN(cfg)), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, errors.Wrap(err, "persist: open mysql")
	}
	if err := db.AutoMigrate(&Snapshot{}); err != nil {
		return nil, errors.Wrap(err, "persist: migrate")
	}
	return db, nil
}

// GormWriter upserts snapshots through gorm.
type GormWriter struct {
	db *gorm.DB
}

func NewGormWriter(db *gorm.DB) *GormWriter {
	return &GormWriter{db: db}
}

func (w *GormWriter) Save(ctx context.Context, s *Snapshot) error {
	err := w.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(s).Error
	return errors.Wrapf(err, "persist: save %s", s.ID)
}

func (w *GormWriter) Delete(ctx context.Context, id string) error {
	err := w.db.WithContext(ctx).Delete(&Snapshot{}, "id = ?", id).Error
	return errors.Wrapf(err, "persist: delete %s", id)
}
