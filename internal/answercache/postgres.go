package answercache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VenkatGGG/formfill/internal/question"
)

type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	store := &PostgresStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS cache_entries (
	fingerprint TEXT PRIMARY KEY,
	answer TEXT NOT NULL,
	answer_index INTEGER NULL,
	extracted_text TEXT NULL,
	question TEXT NULL,
	image_hash TEXT NULL,
	choices TEXT[] NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_question_fts ON cache_entries USING GIN (to_tsvector('simple', COALESCE(question, '')));`,
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_image_hash ON cache_entries (image_hash);`,
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_choices ON cache_entries USING GIN (choices);`,
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_created_at ON cache_entries (created_at DESC);`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("initialize cache_entries schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, fingerprint question.Fingerprint) (Entry, bool, error) {
	row := s.pool.QueryRow(ctx, `
SELECT fingerprint, answer, answer_index, extracted_text, question, image_hash, choices, created_at, updated_at
FROM cache_entries
WHERE fingerprint = $1
`, string(fingerprint))
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("answer cache get: %w", err)
	}
	return entry, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, entry Entry) error {
	prepared, err := prepare(entry, nil, s.now())
	if err != nil {
		return err
	}
	var answerIndex *int32
	if prepared.AnswerIndex != nil {
		v := int32(*prepared.AnswerIndex)
		answerIndex = &v
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO cache_entries (fingerprint, answer, answer_index, extracted_text, question, image_hash, choices, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (fingerprint) DO UPDATE SET
	answer = EXCLUDED.answer,
	answer_index = EXCLUDED.answer_index,
	extracted_text = EXCLUDED.extracted_text,
	question = EXCLUDED.question,
	image_hash = EXCLUDED.image_hash,
	choices = EXCLUDED.choices,
	updated_at = EXCLUDED.updated_at
`,
		string(prepared.Fingerprint),
		prepared.Answer,
		answerIndex,
		nullableText(prepared.ExtractedText),
		nullableText(prepared.Question),
		nullableText(prepared.ImageHash),
		prepared.Choices,
		prepared.CreatedAt,
		prepared.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("answer cache put: %w", err)
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, filters SearchFilters) ([]Entry, error) {
	filters = filters.normalized()

	var (
		conditions []string
		args       []any
	)
	if filters.TextQuery != "" {
		args = append(args, filters.TextQuery)
		conditions = append(conditions, fmt.Sprintf("to_tsvector('simple', COALESCE(question, '')) @@ plainto_tsquery('simple', $%d)", len(args)))
	}
	if filters.ImageHash != "" {
		args = append(args, filters.ImageHash)
		conditions = append(conditions, fmt.Sprintf("image_hash = $%d", len(args)))
	}
	if len(filters.Choices) > 0 {
		args = append(args, filters.Choices)
		conditions = append(conditions, fmt.Sprintf("choices = $%d", len(args)))
	}

	query := `
SELECT fingerprint, answer, answer_index, extracted_text, question, image_hash, choices, created_at, updated_at
FROM cache_entries`
	if len(conditions) > 0 {
		query += "\nWHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, filters.Limit, filters.Offset)
	query += fmt.Sprintf("\nORDER BY created_at DESC, fingerprint ASC\nLIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("answer cache search: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, filters.Limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("answer cache search: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("answer cache search: %w", err)
	}
	return out, nil
}

type entryRowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row entryRowScanner) (Entry, error) {
	var (
		out           Entry
		fingerprint   string
		answerIndex   *int32
		extractedText *string
		questionText  *string
		imageHash     *string
	)
	if err := row.Scan(
		&fingerprint,
		&out.Answer,
		&answerIndex,
		&extractedText,
		&questionText,
		&imageHash,
		&out.Choices,
		&out.CreatedAt,
		&out.UpdatedAt,
	); err != nil {
		return Entry{}, err
	}
	out.Fingerprint = question.Fingerprint(fingerprint)
	if answerIndex != nil {
		v := int(*answerIndex)
		out.AnswerIndex = &v
	}
	out.ExtractedText = derefText(extractedText)
	out.Question = derefText(questionText)
	out.ImageHash = derefText(imageHash)
	out.CreatedAt = out.CreatedAt.UTC()
	out.UpdatedAt = out.UpdatedAt.UTC()
	return out, nil
}

func nullableText(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func derefText(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
