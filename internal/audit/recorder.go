package audit

import (
	"context"
	"errors"
	"time"

	"github.com/binaryblob/binaryblob/internal/serviceerror"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opRecord      = "audit.record"
	opRecordBatch = "audit.record_batch"
	opHistory     = "audit.history"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// RecorderConfig describes the dependencies of a Recorder.
type RecorderConfig struct {
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Recorder appends audit events. It never updates or deletes rows.
//
// Every method takes the gorm handle to write through so callers can place audit
// rows inside their own transaction.
type Recorder struct {
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewRecorder constructs a Recorder, defaulting to time.Now and UUIDv7 ids.
func NewRecorder(cfg RecorderConfig) *Recorder {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = IDFunc(UUIDv7)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Recorder{clock: clock, idProvider: idProvider, logger: logger}
}

// Record appends one event.
func (r *Recorder) Record(ctx context.Context, db *gorm.DB, entry Entry) (Event, error) {
	if db == nil {
		return Event{}, serviceerror.New(opRecord, "missing_database", errMissingDatabase)
	}
	event, err := r.buildEvent(entry)
	if err != nil {
		return Event{}, serviceerror.New(opRecord, "invalid_entry", err)
	}
	if err := db.WithContext(ctx).Create(&event).Error; err != nil {
		r.logError(opRecord, "insert_failed", err,
			zap.String("entity", string(entry.Entity)),
			zap.Uint("record_id", entry.RecordID),
			zap.String("field", entry.Field))
		return Event{}, serviceerror.New(opRecord, "insert_failed", err)
	}
	return event, nil
}

// RecordBatch appends one event per entry inside a single transaction.
// An empty batch writes nothing.
func (r *Recorder) RecordBatch(ctx context.Context, db *gorm.DB, entries []Entry) ([]Event, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	if db == nil {
		return nil, serviceerror.New(opRecordBatch, "missing_database", errMissingDatabase)
	}

	events := make([]Event, 0, len(entries))
	for _, entry := range entries {
		event, err := r.buildEvent(entry)
		if err != nil {
			return nil, serviceerror.New(opRecordBatch, "invalid_entry", err)
		}
		events = append(events, event)
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&events).Error
	})
	if err != nil {
		r.logError(opRecordBatch, "insert_failed", err,
			zap.String("entity", string(entries[0].Entity)),
			zap.Uint("record_id", entries[0].RecordID),
			zap.Int("entries", len(entries)))
		return nil, serviceerror.New(opRecordBatch, "insert_failed", err)
	}
	return events, nil
}

// History returns the events recorded for one record, oldest first.
func (r *Recorder) History(ctx context.Context, db *gorm.DB, entity EntityKind, recordID uint) ([]Event, error) {
	if db == nil {
		return nil, serviceerror.New(opHistory, "missing_database", errMissingDatabase)
	}
	if !entity.Valid() {
		return nil, serviceerror.New(opHistory, "invalid_entity", ErrUnknownEntity)
	}
	var events []Event
	if err := db.WithContext(ctx).
		Where("entity_table = ? AND record_id = ?", entity, recordID).
		Order("occurred_at ASC").
		Order("id ASC").
		Find(&events).Error; err != nil {
		r.logError(opHistory, "query_failed", err, zap.Uint("record_id", recordID))
		return nil, serviceerror.New(opHistory, "query_failed", err)
	}
	return events, nil
}

func (r *Recorder) buildEvent(entry Entry) (Event, error) {
	if err := entry.validate(); err != nil {
		return Event{}, err
	}
	eventID, err := r.idProvider.NewID()
	if err != nil {
		return Event{}, err
	}
	occurredAt := entry.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = r.clock()
	}
	return Event{
		EventID:    eventID,
		Entity:     entry.Entity,
		RecordID:   entry.RecordID,
		Field:      entry.Field,
		OldValue:   entry.OldValue,
		NewValue:   entry.NewValue,
		ActorID:    entry.ActorID,
		OccurredAt: occurredAt.UTC(),
	}, nil
}

func (r *Recorder) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	r.logger.Error("audit recorder error", attrs...)
}
