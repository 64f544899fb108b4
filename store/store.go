package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	gomysql "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the read-only view of the event metadata the pipeline needs.
type Store interface {
	Event(ctx context.Context, id uint64) (*Event, error)
	// Frame looks a frame up by its global key.
	Frame(ctx context.Context, id uint64) (*Frame, error)
	// EventFrame looks a frame up by its ordinal inside an event.
	EventFrame(ctx context.Context, eventID, frameID uint64) (*Frame, error)
	StorageArea(ctx context.Context, id uint64) (*StorageArea, error)
}

// GormStore reads the ZoneMinder tables through gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// dialector forces parseTime on the DSN. Without it DATETIME columns arrive
// as []byte and cannot be scanned into Event.StartDateTime.
func dialector(dsn string) (gorm.Dialector, error) {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid metadata database dsn: %w", err)
	}
	cfg.ParseTime = true

	return mysql.New(mysql.Config{DSNConfig: cfg}), nil
}

// OpenMySQL connects to the metadata database. Query logging is left to zap.
func OpenMySQL(dsn string, logger *zap.Logger) (*GormStore, error) {
	d, err := dialector(dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(d, &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata database: %w", err)
	}

	logger.Info("connected to metadata database")

	return NewGormStore(db), nil
}

// Ping checks the database connection is usable.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) Event(ctx context.Context, id uint64) (*Event, error) {
	var event Event
	if err := s.db.WithContext(ctx).First(&event, "Id = ?", id).Error; err != nil {
		return nil, wrap(err, "event %d", id)
	}
	return &event, nil
}

func (s *GormStore) Frame(ctx context.Context, id uint64) (*Frame, error) {
	var frame Frame
	if err := s.db.WithContext(ctx).First(&frame, "Id = ?", id).Error; err != nil {
		return nil, wrap(err, "frame %d", id)
	}
	return &frame, nil
}

func (s *GormStore) EventFrame(ctx context.Context, eventID, frameID uint64) (*Frame, error) {
	var frame Frame
	err := s.db.WithContext(ctx).
		Where("EventId = ? AND FrameId = ?", eventID, frameID).
		First(&frame).Error
	if err != nil {
		return nil, wrap(err, "frame %d of event %d", frameID, eventID)
	}
	return &frame, nil
}

func (s *GormStore) StorageArea(ctx context.Context, id uint64) (*StorageArea, error) {
	var area StorageArea
	if err := s.db.WithContext(ctx).First(&area, "Id = ?", id).Error; err != nil {
		return nil, wrap(err, "storage area %d", id)
	}
	return &area, nil
}

func wrap(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

// EventPath resolves the absolute event directory. Storage id 0 or a missing
// storage row falls back to the default events dir.
func EventPath(ctx context.Context, s Store, event *Event, defaultDir string, logger *zap.Logger) (string, error) {
	root := defaultDir

	if event.StorageID != 0 {
		area, err := s.StorageArea(ctx, event.StorageID)
		switch {
		case err == nil && area.Path != "":
			root = area.Path
		case err == nil || errors.Is(err, ErrNotFound):
			logger.Warn("unknown storage area, using default events dir",
				zap.Uint64("storage_id", event.StorageID), zap.Uint64("event_id", event.ID), zap.String("dir", defaultDir))
		default:
			return "", err
		}
	}

	return filepath.Join(root, filepath.FromSlash(event.RelativePath())), nil
}
