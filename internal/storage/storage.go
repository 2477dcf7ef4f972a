package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Frame is one captured screen frame and the text recognized on it.
type Frame struct {
	ID         string    `json:"id" gorm:"primaryKey;type:text"`
	CapturedAt time.Time `json:"captured_at" gorm:"index;not null"`
	Text       string    `json:"text"`
	ImagePath  string    `json:"image_path"`
}

// AudioChunk is one recorded audio segment from a capture device.
type AudioChunk struct {
	ID         string        `json:"id" gorm:"primaryKey;type:text"`
	DeviceName string        `json:"device_name" gorm:"index;not null"`
	Path       string        `json:"path"`
	StartedAt  time.Time     `json:"started_at" gorm:"index;not null"`
	Duration   time.Duration `json:"duration"`
	Transcript string        `json:"transcript"`
}

// SearchResult is a hit returned by the search endpoint.
type SearchResult struct {
	Kind       string    `json:"kind"` // "frame" or "audio"
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	CapturedAt time.Time `json:"captured_at"`
}

// Store persists captured frames and audio chunks in a local sqlite
// database. The daemon keeps serving queries against stored data even while
// the capture engine restarts.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the sqlite database at path and migrates the
// schema. A failure here is fatal at startup: the daemon refuses to run
// without its database.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	if err := db.AutoMigrate(&Frame{}, &AudioChunk{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}

	return &Store{db: db}, nil
}

// InsertFrame stores a captured frame, generating an id when missing.
func (s *Store) InsertFrame(ctx context.Context, f *Frame) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CapturedAt.IsZero() {
		f.CapturedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(f).Error; err != nil {
		return fmt.Errorf("failed to insert frame %s: %w", f.ID, err)
	}
	return nil
}

// InsertAudioChunk stores a recorded audio chunk, generating an id when
// missing.
func (s *Store) InsertAudioChunk(ctx context.Context, c *AudioChunk) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("failed to insert audio chunk %s: %w", c.ID, err)
	}
	return nil
}

// SearchText finds frames and audio transcripts containing the query text,
// newest first.
func (s *Store) SearchText(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + query + "%"

	var frames []Frame
	if err := s.db.WithContext(ctx).
		Where("text LIKE ?", pattern).
		Order("captured_at DESC").
		Limit(limit).
		Find(&frames).Error; err != nil {
		return nil, fmt.Errorf("frame search failed: %w", err)
	}

	var chunks []AudioChunk
	if err := s.db.WithContext(ctx).
		Where("transcript LIKE ?", pattern).
		Order("started_at DESC").
		Limit(limit).
		Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("audio search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(frames)+len(chunks))
	for _, f := range frames {
		results = append(results, SearchResult{Kind: "frame", ID: f.ID, Text: f.Text, CapturedAt: f.CapturedAt})
	}
	for _, c := range chunks {
		results = append(results, SearchResult{Kind: "audio", ID: c.ID, Text: c.Transcript, CapturedAt: c.StartedAt})
	}
	return results, nil
}

// LastActivity returns the timestamp of the most recent captured frame or
// audio chunk. Used by the health probe to detect a stalled capture engine.
func (s *Store) LastActivity(ctx context.Context) (time.Time, error) {
	var frameAt, chunkAt *time.Time

	if err := s.db.WithContext(ctx).Model(&Frame{}).
		Select("MAX(captured_at)").Scan(&frameAt).Error; err != nil {
		return time.Time{}, fmt.Errorf("failed to query last frame: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&AudioChunk{}).
		Select("MAX(started_at)").Scan(&chunkAt).Error; err != nil {
		return time.Time{}, fmt.Errorf("failed to query last audio chunk: %w", err)
	}

	var last time.Time
	if frameAt != nil {
		last = *frameAt
	}
	if chunkAt != nil && chunkAt.After(last) {
		last = *chunkAt
	}
	return last, nil
}

// Counts returns how many frames and audio chunks are stored.
func (s *Store) Counts(ctx context.Context) (frames int64, chunks int64, err error) {
	if err = s.db.WithContext(ctx).Model(&Frame{}).Count(&frames).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count frames: %w", err)
	}
	if err = s.db.WithContext(ctx).Model(&AudioChunk{}).Count(&chunks).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count audio chunks: %w", err)
	}
	return frames, chunks, nil
}
