package sink

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"weldvision/internal/models"
)

// DetectionRow is the table form of a DetectionRecord.
type DetectionRow struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Collection string    `gorm:"index;size:128"`
	Label      string    `gorm:"size:128"`
	Confianza  float64
	Timestamp  string    `gorm:"size:40"`
	CreatedAt  time.Time
}

func (DetectionRow) TableName() string {
	return "detection_records"
}

// SQL inserts one row per record through gorm.
type SQL struct {
	db         *gorm.DB
	collection string
}

func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	return db, errors.Wrap(err, "open postgres")
}

func NewSQL(db *gorm.DB, collection string) (*SQL, error) {
	if err := db.AutoMigrate(&DetectionRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate detection_records")
	}
	return &SQL{db: db, collection: collection}, nil
}

func (s *SQL) Append(ctx context.Context, rec models.DetectionRecord) error {
	row := DetectionRow{
		ID:         uuid.NewString(),
		Collection: s.collection,
		Label:      rec.Label,
		Confianza:  rec.Confidence,
		Timestamp:  rec.Timestamp,
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(&row).Error, "insert detection")
}

func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
