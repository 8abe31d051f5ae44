package campusadmin

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/eringen/campusadmin/collections"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("campusadmin: document not found")

// timestamps are fixed width so they sort as text
const tsLayout = "2006-01-02T15:04:05.000Z"

// Document is one entity of a collection.
type Document struct {
	ID         string             `json:"id"`
	Collection string             `json:"collection"`
	Data       collections.Entity `json:"data"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Filter compares one top-level field of the document data.
type Filter struct {
	Field string
	Op    string // =, !=, <, <=, >, >=
	Value any    // nil matches missing or null values
}

// Query narrows and orders ListDocuments results. An empty OrderBy sorts by
// last update, newest first.
type Query struct {
	Where   []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

var (
	fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	validOps  = map[string]bool{"=": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}
)

// Store wraps a SQLite database holding the documents of every collection.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and creates the schema.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets readers run alongside the single writer; busy_timeout makes
	// writers wait instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
		PRAGMA cache_size=-8000;
	`); err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    data TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(collection, updated_at);
`)
	return err
}

// ListDocuments returns the documents of collection matching q.
func (s *Store) ListDocuments(ctx context.Context, collection string, q Query) ([]Document, error) {
	var (
		where = []string{"collection = ?"}
		args  = []any{collection}
	)
	for _, f := range q.Where {
		if !fieldName.MatchString(f.Field) {
			return nil, fmt.Errorf("invalid filter field %q", f.Field)
		}
		op := f.Op
		if op == "" {
			op = "="
		}
		if !validOps[op] {
			return nil, fmt.Errorf("invalid filter operator %q", f.Op)
		}
		if f.Value == nil {
			switch op {
			case "=":
				where = append(where, "json_extract(data, ?) IS NULL")
			case "!=":
				where = append(where, "json_extract(data, ?) IS NOT NULL")
			default:
				return nil, fmt.Errorf("operator %q needs a value", op)
			}
			args = append(args, "$."+f.Field)
			continue
		}
		where = append(where, "json_extract(data, ?) "+op+" ?")
		args = append(args, "$."+f.Field, sqlValue(f.Value))
	}

	query := `SELECT id, data, created_at, updated_at FROM documents WHERE ` + strings.Join(where, " AND ")
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	if q.OrderBy != "" {
		if !fieldName.MatchString(q.OrderBy) {
			return nil, fmt.Errorf("invalid order field %q", q.OrderBy)
		}
		query += " ORDER BY json_extract(data, ?) " + dir + ", id " + dir
		args = append(args, "$."+q.OrderBy)
	} else {
		query += " ORDER BY updated_at DESC, id DESC"
	}
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows, collection)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// sqlValue converts booleans to the 0/1 json_extract yields for JSON true/false.
func sqlValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner, collection string) (Document, error) {
	var (
		doc                  = Document{Collection: collection}
		data, created, updated string
	)
	if err := row.Scan(&doc.ID, &data, &created, &updated); err != nil {
		return Document{}, err
	}
	if err := json.Unmarshal([]byte(data), &doc.Data); err != nil {
		return Document{}, fmt.Errorf("decode %s/%s: %w", collection, doc.ID, err)
	}
	doc.CreatedAt, _ = time.Parse(tsLayout, created)
	doc.UpdatedAt, _ = time.Parse(tsLayout, updated)
	return doc, nil
}

// GetDocument returns a document by id.
func (s *Store) GetDocument(ctx context.Context, collection, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, data, created_at, updated_at FROM documents WHERE collection = ? AND id = ?`,
		collection, id)
	doc, err := scanDocument(row, collection)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return doc, err
}

// SaveDocument inserts or replaces a document. A new ULID is assigned when
// doc.ID is empty; CreatedAt is kept across updates.
func (s *Store) SaveDocument(ctx context.Context, collection string, doc Document) (Document, error) {
	if doc.ID == "" {
		doc.ID = ulid.Make().String()
	}
	if doc.Data == nil {
		doc.Data = collections.Entity{}
	}
	data, err := json.Marshal(doc.Data)
	if err != nil {
		return Document{}, fmt.Errorf("encode %s/%s: %w", collection, doc.ID, err)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, doc.ID, string(data), now.Format(tsLayout), now.Format(tsLayout))
	if err != nil {
		return Document{}, fmt.Errorf("save %s/%s: %w", collection, doc.ID, err)
	}
	return s.GetDocument(ctx, collection, doc.ID)
}

// DeleteDocument removes a document by id.
func (s *Store) DeleteDocument(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DocumentsContaining returns documents of any collection whose stored JSON
// contains text verbatim.
func (s *Store) DocumentsContaining(ctx context.Context, text string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT collection, id, data, created_at, updated_at FROM documents WHERE instr(data, ?) > 0`, text)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		var (
			doc                    Document
			data, created, updated string
		)
		if err := rows.Scan(&doc.Collection, &doc.ID, &data, &created, &updated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &doc.Data); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", doc.Collection, doc.ID, err)
		}
		doc.CreatedAt, _ = time.Parse(tsLayout, created)
		doc.UpdatedAt, _ = time.Parse(tsLayout, updated)
		out = append(out, doc)
	}
	return out, rows.Err()
}

// CountDocuments returns the number of documents per collection.
func (s *Store) CountDocuments(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT collection, COUNT(*) FROM documents GROUP BY collection`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var (
			name string
			n    int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, rows.Err()
}
