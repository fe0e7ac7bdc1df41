package record

import (
	"context"
	"errors"
	"time"

	"github.com/neurobot/backend/internal/features"
)

var ErrNotFound = errors.New("record: not found")

// Record is one ingested EEG sample after processing. RawDataURL is nil when
// the raw sample was not stored.
type Record struct {
	ID         int64            `gorm:"primaryKey" json:"id"`
	UploadedAt time.Time        `gorm:"autoCreateTime;not null" json:"uploaded_at"`
	RawDataURL *string          `gorm:"column:raw_data_s3" json:"raw_data_s3"`
	Features   features.Summary `gorm:"serializer:json;not null" json:"features"`
	Mood       string           `gorm:"column:mood_inference;size:128" json:"mood_inference"`
}

func (Record) TableName() string { return "core_eegrecord" }

// Repository persists records. Create assigns ID and UploadedAt.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id int64) (*Record, error)
}
