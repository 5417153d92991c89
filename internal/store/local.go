package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	_ "modernc.org/sqlite"

	"github.com/aweris/imgsync"
)

const schema = `
CREATE TABLE IF NOT EXISTS containers (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	uri        TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	tag        TEXT NOT NULL,
	version    TEXT NOT NULL,
	image      TEXT NOT NULL DEFAULT '',
	url        TEXT NOT NULL DEFAULT '',
	metadata   TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS containers_name_tag ON containers (name, tag);
`

const columns = `id, uri, name, tag, version, image, url, metadata, created_at, updated_at`

var imageExtensions = []string{".sif", ".simg", ".img"}

// LocalStore implements Store using a sqlite database and a directory of
// image files it owns.
type LocalStore struct {
	basePath string
	dbPath   string
	db       *sql.DB
	cache    Cache
	logger   *slog.Logger
}

// Option configures a LocalStore.
type Option func(*LocalStore)

// WithDatabase sets the database file. Defaults to <basePath>/imgsync.db.
func WithDatabase(path string) Option {
	return func(s *LocalStore) { s.dbPath = path }
}

// WithCacheSize sets how many records are kept in memory for URI lookups.
func WithCacheSize(n int) Option {
	return func(s *LocalStore) { s.cache = NewLRUCache(n) }
}

// WithLogger sets the logger for diagnostic output.
func WithLogger(l *slog.Logger) Option {
	return func(s *LocalStore) { s.logger = l }
}

// NewLocalStore opens (creating if needed) the store rooted at basePath.
func NewLocalStore(basePath string, opts ...Option) (*LocalStore, error) {
	basePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, err
	}

	s := &LocalStore{
		basePath: basePath,
		dbPath:   filepath.Join(basePath, "imgsync.db"),
		cache:    NewLRUCache(128),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dbPath, err = filepath.Abs(s.dbPath); err != nil {
		return nil, err
	}

	for _, dir := range []string{basePath, filepath.Dir(s.dbPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	dsn := "file:" + filepath.ToSlash(s.dbPath) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	s.db = db

	s.log().Debug("opened store", "path", basePath, "database", s.dbPath)
	return s, nil
}

var _ Store = (*LocalStore)(nil)

func (s *LocalStore) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Location returns the database location as a sqlite URL.
func (s *LocalStore) Location() string {
	return "sqlite://" + filepath.ToSlash(s.dbPath)
}

// BasePath returns the directory images are kept in.
func (s *LocalStore) BasePath() string {
	return s.basePath
}

// Close closes the database.
func (s *LocalStore) Close() error {
	s.cache.Clear()
	return s.db.Close()
}

// Add records an image under its canonical URI and moves (or copies, with
// req.Copy) its file into the storage directory. Adding the same URI again
// replaces the existing record.
//
// The record key is req.URI in the form ParseReference produces: lower-cased,
// with the default collection filled in. References whose collection or
// image would leave the storage directory are rejected.
func (s *LocalStore) Add(ctx context.Context, req imgsync.AddRequest) (*imgsync.Container, error) {
	ref := imgsync.ParseReference(req.URI)
	if !ref.Valid() {
		return nil, fmt.Errorf("%w: %q", imgsync.ErrInvalidReference, req.URI)
	}
	if err := checkPathSafe(ref); err != nil {
		return nil, err
	}
	if ref.Version == "" && req.Metadata != nil {
		ref.Version = strings.ToLower(req.Metadata.Version)
	}

	image := ""
	undo := func() {}
	if req.ImagePath != "" {
		src, err := filepath.Abs(req.ImagePath)
		if err != nil {
			return nil, err
		}
		if ref.Version == "" {
			if ref.Version, err = fileVersion(src); err != nil {
				return nil, fmt.Errorf("hash image: %w", err)
			}
		}
		if image, err = s.imagePath(ref, src); err != nil {
			return nil, err
		}
		if err := placeFile(src, image, req.Copy); err != nil {
			return nil, fmt.Errorf("store image: %w", err)
		}
		undo = func() { unplaceFile(src, image, req.Copy) }
	}
	if ref.Version == "" {
		return nil, fmt.Errorf("%w: %q has no version", imgsync.ErrInvalidReference, req.URI)
	}

	var metadata sql.NullString
	if req.Metadata != nil {
		data, err := json.Marshal(req.Metadata)
		if err != nil {
			undo()
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	uri := ref.String()
	now := time.Now().UnixNano()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO containers (uri, name, tag, version, image, url, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (uri) DO UPDATE SET
			image = excluded.image,
			url = excluded.url,
			metadata = COALESCE(excluded.metadata, containers.metadata),
			updated_at = excluded.updated_at`,
		uri, ref.Name(), ref.Tag, ref.Version, image, req.URL, metadata, now, now)
	if err != nil {
		undo()
		return nil, fmt.Errorf("save %s: %w", uri, err)
	}
	s.cache.Remove(uri)

	c, err := s.queryOne(ctx, `SELECT `+columns+` FROM containers WHERE uri = ?`, uri)
	if err != nil {
		return nil, err
	}
	s.cache.Add(uri, *c)

	s.log().Debug("added container", "uri", uri, "image", image)
	return c, nil
}

// Get finds a record by exact URI, falling back to the newest record
// matching the reference's name, tag and (if given) version.
func (s *LocalStore) Get(ctx context.Context, query string) (*imgsync.Container, error) {
	ref := imgsync.ParseReference(query)
	uri := ref.String()

	if c, ok := s.cache.Get(uri); ok {
		return &c, nil
	}

	c, err := s.queryOne(ctx, `SELECT `+columns+` FROM containers WHERE uri = ?`, uri)
	if err == nil {
		s.cache.Add(uri, *c)
		return c, nil
	}
	if !errors.Is(err, imgsync.ErrNotFound) {
		return nil, err
	}

	q := `SELECT ` + columns + ` FROM containers WHERE name = ? AND tag = ?`
	args := []any{ref.Name(), ref.Tag}
	if ref.Version != "" {
		q += ` AND version = ?`
		args = append(args, ref.Version)
	}
	q += ` ORDER BY updated_at DESC, id DESC LIMIT 1`

	c, err = s.queryOne(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", query, err)
	}
	return c, nil
}

// List returns the records whose URI contains query, all records for an
// empty query.
func (s *LocalStore) List(ctx context.Context, query string) ([]imgsync.Container, error) {
	q := `SELECT ` + columns + ` FROM containers`
	var args []any
	if query = strings.ToLower(imgsync.RemoveURI(query)); query != "" {
		q += ` WHERE uri LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(query)+"%")
	}
	q += ` ORDER BY name, tag, updated_at DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	defer rows.Close()

	var out []imgsync.Container
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Remove deletes the record matching query and keeps its image file.
func (s *LocalStore) Remove(ctx context.Context, query string) (*imgsync.Container, error) {
	c, err := s.Get(ctx, query)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM containers WHERE id = ?`, c.ID); err != nil {
		return nil, fmt.Errorf("remove %s: %w", c.URI, err)
	}
	s.cache.Remove(c.URI)
	s.log().Debug("removed container", "uri", c.URI)
	return c, nil
}

// Delete removes the record matching query and its image file.
func (s *LocalStore) Delete(ctx context.Context, query string) (*imgsync.Container, error) {
	c, err := s.Remove(ctx, query)
	if err != nil {
		return nil, err
	}
	if c.ImagePath != "" {
		if err := os.Remove(c.ImagePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return c, fmt.Errorf("remove image file: %w", err)
		}
	}
	return c, nil
}

func (s *LocalStore) queryOne(ctx context.Context, query string, args ...any) (*imgsync.Container, error) {
	c, err := scanContainer(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, imgsync.ErrNotFound
	}
	return c, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContainer(row scanner) (*imgsync.Container, error) {
	var (
		c                imgsync.Container
		metadata         sql.NullString
		created, updated int64
	)
	if err := row.Scan(&c.ID, &c.URI, &c.Name, &c.Tag, &c.Version, &c.ImagePath, &c.URL, &metadata, &created, &updated); err != nil {
		return nil, err
	}
	if metadata.Valid {
		c.Metadata = json.RawMessage(metadata.String)
	}
	c.CreatedAt = time.Unix(0, created)
	c.UpdatedAt = time.Unix(0, updated)
	return &c, nil
}

// imagePath is where the store keeps the image of ref:
// <basePath>/<collection>/<image>-<tag>@<version><ext>.
func (s *LocalStore) imagePath(ref imgsync.Reference, src string) (string, error) {
	ext := ".sif"
	for _, e := range imageExtensions {
		if strings.EqualFold(filepath.Ext(src), e) {
			ext = strings.ToLower(e)
			break
		}
	}
	path := filepath.Join(s.basePath, filepath.FromSlash(ref.Slug())+ext)

	rel, err := filepath.Rel(s.basePath, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s is outside the storage directory", imgsync.ErrInvalidReference, ref)
	}
	return path, nil
}

// checkPathSafe rejects references whose collection or image is absolute or
// has a "." or ".." segment.
func checkPathSafe(ref imgsync.Reference) error {
	for _, part := range []string{ref.Collection, ref.Image} {
		if strings.HasPrefix(part, "/") || strings.HasPrefix(part, `\`) || filepath.IsAbs(part) {
			return fmt.Errorf("%w: %s has an absolute path", imgsync.ErrInvalidReference, ref)
		}
		for _, seg := range strings.FieldsFunc(part, func(r rune) bool { return r == '/' || r == '\\' }) {
			if seg == "." || seg == ".." {
				return fmt.Errorf("%w: %s has a %q segment", imgsync.ErrInvalidReference, ref, seg)
			}
		}
	}
	return nil
}

// placeFile moves src to dst, or copies it when keep is set. A move across
// devices falls back to copy and remove.
func placeFile(src, dst string, keep bool) error {
	if src == dst {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if !keep {
		if err := os.Rename(src, dst); err == nil {
			return nil
		}
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	if !keep {
		return os.Remove(src)
	}
	return nil
}

// unplaceFile reverts placeFile: a moved file goes back to src, a copy is
// removed.
func unplaceFile(src, dst string, keep bool) {
	if src == dst {
		return
	}
	if keep {
		os.Remove(dst)
		return
	}
	if err := os.Rename(dst, src); err != nil {
		if copyFile(dst, src) == nil {
			os.Remove(dst)
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// fileVersion is the hex sha256 of the file, used when an image has no version.
func fileVersion(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	d, err := digest.SHA256.FromReader(f)
	if err != nil {
		return "", err
	}
	return d.Encoded(), nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
