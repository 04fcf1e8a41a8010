// Package audit records every row a session writes into a change journal
// table, inside the same transaction as the change itself.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/klauspost/compress/zstd"

	"cookbook/internal/core/id"
	"cookbook/internal/core/store"
	"cookbook/internal/session"
	"cookbook/pkg/logger"
)

// Table is the journal table name.
const Table = "change_journal"

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// FieldChange is one field of a journal entry.
type FieldChange struct {
	Field string `json:"field"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
}

// Entry is one journal row, decoded.
type Entry struct {
	ID            string
	SessionID     string
	TransactionID string
	EntityType    string
	EntityKey     string
	Operation     session.Operation
	Changes       []FieldChange
	Compression   CompressionAlgo
	CreatedAt     time.Time
}

var _ session.SaveHook = (*Journal)(nil)

// Journal is a session.SaveHook writing change journal rows.
// Payloads above the compression threshold are stored zstd compressed.
type Journal struct {
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
	now               func() time.Time
	log               *logger.Logger
}

// Option configures a Journal.
type Option func(*Journal)

// WithCompressThreshold sets the payload size in bytes above which changes are compressed.
func WithCompressThreshold(n int) Option {
	return func(j *Journal) { j.compressThreshold = n }
}

// WithLogger sets the journal logger.
func WithLogger(l *logger.Logger) Option {
	return func(j *Journal) { j.log = l }
}

// NewJournal creates a journal. Close releases the codec.
func NewJournal(opts ...Option) (*Journal, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	j := &Journal{
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024, // 10KB
		now:               func() time.Time { return time.Now().UTC() },
		log:               logger.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}
	j.log = j.log.WithComponent("journal")
	return j, nil
}

// Close releases the zstd encoder and decoder.
func (j *Journal) Close() error {
	j.decoder.Close()
	return j.encoder.Close()
}

// OnSave writes one journal row per change record in a single INSERT.
func (j *Journal) OnSave(ctx context.Context, sc *session.SaveContext) error {
	if len(sc.Records) == 0 {
		return nil
	}

	q := squirrel.Insert(Table).
		Columns("id", "session_id", "transaction_id", "entity_type", "entity_key",
			"operation", "changes", "changes_compressed", "compression_algo", "created_at").
		PlaceholderFormat(sc.Placeholder)

	created := j.now().Format(timeLayout)
	for _, rec := range sc.Records {
		changes := make([]FieldChange, len(rec.Changes))
		for i, c := range rec.Changes {
			changes[i] = FieldChange{Field: c.Field, Old: c.Original, New: c.Current}
		}
		payload, err := json.Marshal(changes)
		if err != nil {
			return fmt.Errorf("marshal changes: %w", err)
		}

		var (
			plain      any = string(payload)
			compressed []byte
			algo           = CompressionNone
		)
		if len(payload) > j.compressThreshold {
			compressed = j.encoder.EncodeAll(payload, nil)
			plain = nil
			algo = CompressionZstd
		}

		q = q.Values(id.New().String(), sc.SessionID, sc.TransactionID, rec.Entity, rec.Key,
			string(rec.Operation), plain, compressed, string(algo), created)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build journal insert: %w", err)
	}
	if _, err := sc.Querier.Exec(ctx, sql, args...); err != nil {
		return err
	}
	j.log.WithContext(ctx).Debugw("journal written", "records", len(sc.Records))
	return nil
}

// History returns the journal of one entity, newest first.
func (j *Journal) History(ctx context.Context, q store.Querier, ph squirrel.PlaceholderFormat, entityType, key string, limit uint64) ([]Entry, error) {
	sb := squirrel.Select("id", "session_id", "transaction_id", "entity_type", "entity_key",
		"operation", "changes", "changes_compressed", "compression_algo", "created_at").
		From(Table).
		Where(squirrel.Eq{"entity_type": entityType, "entity_key": key}).
		OrderBy("id DESC").
		PlaceholderFormat(ph)
	if limit > 0 {
		sb = sb.Limit(limit)
	}
	sql, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		row, err := rows.Values()
		if err != nil {
			return nil, err
		}
		e, err := j.decode(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (j *Journal) decode(row map[string]any) (Entry, error) {
	e := Entry{
		ID:            asString(row["id"]),
		SessionID:     asString(row["session_id"]),
		TransactionID: asString(row["transaction_id"]),
		EntityType:    asString(row["entity_type"]),
		EntityKey:     asString(row["entity_key"]),
		Operation:     session.Operation(asString(row["operation"])),
		Compression:   CompressionAlgo(asString(row["compression_algo"])),
	}

	switch v := row["created_at"].(type) {
	case time.Time:
		e.CreatedAt = v
	case string:
		t, err := time.Parse(timeLayout, v)
		if err != nil {
			return Entry{}, fmt.Errorf("parse created_at: %w", err)
		}
		e.CreatedAt = t
	}

	payload := []byte(asString(row["changes"]))
	if e.Compression == CompressionZstd {
		blob, _ := row["changes_compressed"].([]byte)
		decompressed, err := j.decoder.DecodeAll(blob, nil)
		if err != nil {
			return Entry{}, fmt.Errorf("decompress changes: %w", err)
		}
		payload = decompressed
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &e.Changes); err != nil {
			return Entry{}, fmt.Errorf("unmarshal changes: %w", err)
		}
	}
	return e, nil
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
