package domain

import "time"

// Upload is a single uploaded document owned by one user. The file bytes
// live on disk (StoragePath); the row carries everything the dashboard needs.
type Upload struct {
	ID          int64      `gorm:"column:id;primaryKey" json:"id"`
	UserID      int64      `gorm:"column:user_id;index" json:"user_id"`
	Name        string     `gorm:"column:name" json:"name"`
	MimeType    string     `gorm:"column:mime_type" json:"mime_type"`
	Size        int64      `gorm:"column:size" json:"size"`
	URL         *string    `gorm:"column:url" json:"url"`
	StoragePath string     `gorm:"column:storage_path" json:"-"` // relative disk path
	Content     *string    `gorm:"column:content" json:"-"`      // captured text for text/* payloads
	Summary     *string    `gorm:"column:summary" json:"summary"`
	Tags        []string   `gorm:"-" json:"tags"`
	CreatedAt   time.Time  `gorm:"column:created_at" json:"created_at"`
	ReplacedAt  *time.Time `gorm:"column:replaced_at" json:"replaced_at,omitempty"`
}

func (Upload) TableName() string { return "uploads" }

// UploadTag is one tag on one upload. Kept relational so tag filters and
// facet queries stay plain SQL on both SQLite and PostgreSQL.
type UploadTag struct {
	UploadID int64  `gorm:"column:upload_id;primaryKey;autoIncrement:false"`
	Tag      string `gorm:"column:tag;primaryKey;size:120"`
}

func (UploadTag) TableName() string { return "upload_tags" }
