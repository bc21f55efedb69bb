// Package importer loads YAML batches dropped into the inbox directory.
//
// Each batch file is parsed, upserted through the wellness service and then
// moved to archive/. Files that cannot be imported are moved to failed/ next
// to a .err file holding the reason. Content checksums are recorded so the
// same batch is never applied twice, even when it is dropped again later.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/starford/vigor/internal/apperr"
	"github.com/starford/vigor/internal/parser"
	"github.com/starford/vigor/internal/storage"
	"github.com/starford/vigor/internal/wellness"
)

// Inbox subdirectories that are never scanned.
const (
	ArchiveDir = "archive"
	FailedDir  = "failed"
)

// DefaultDebounce is the quiet period the watcher waits for before importing.
const DefaultDebounce = 300 * time.Millisecond

// Service applies a decoded batch.
type Service interface {
	Import(ctx context.Context, b wellness.Batch) (wellness.ImportResult, error)
}

// Ledger remembers which batch checksums were already imported.
type Ledger interface {
	ImportedChecksum(ctx context.Context, checksum string) (bool, error)
	RecordImport(ctx context.Context, path, checksum string) error
}

// Report summarises one Sync pass.
type Report struct {
	Imported   int
	Duplicates int
	Failed     int
}

// Importer moves batches from the inbox into the store.
type Importer struct {
	svc         Service
	ledger      Ledger
	store       storage.Provider
	log         *slog.Logger
	defaultUser string
	debounce    time.Duration
	deleteDone  bool
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Importer) { i.log = l }
}

// WithDefaultUser sets the user applied to batches that do not name one.
func WithDefaultUser(user string) Option {
	return func(i *Importer) { i.defaultUser = user }
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(i *Importer) { i.debounce = d }
}

// WithDeleteImported deletes imported files instead of archiving them.
func WithDeleteImported() Option {
	return func(i *Importer) { i.deleteDone = true }
}

// New creates an Importer.
func New(svc Service, ledger Ledger, store storage.Provider, opts ...Option) *Importer {
	i := &Importer{
		svc:      svc,
		ledger:   ledger,
		store:    store,
		log:      slog.Default(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Sync imports every pending batch in the inbox, oldest first. A failing
// batch does not stop the pass; only errors that leave the file in place
// (storage or database trouble) are returned, joined.
func (i *Importer) Sync(ctx context.Context) (Report, error) {
	var rep Report
	files, err := i.store.List("", ArchiveDir, FailedDir)
	if err != nil {
		return rep, err
	}

	var errs []error
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		outcome, err := i.importFile(ctx, f)
		switch outcome {
		case outcomeImported:
			rep.Imported++
		case outcomeDuplicate:
			rep.Duplicates++
		case outcomeFailed:
			rep.Failed++
		}
		if err != nil {
			i.log.Warn("import: batch left in inbox", slog.String("path", f.Path), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", f.Path, err))
		}
	}
	return rep, errors.Join(errs...)
}

type outcome int

const (
	outcomeRetry outcome = iota
	outcomeImported
	outcomeDuplicate
	outcomeFailed
)

func (i *Importer) importFile(ctx context.Context, f storage.File) (outcome, error) {
	seen, err := i.ledger.ImportedChecksum(ctx, f.Checksum)
	if err != nil {
		return outcomeRetry, err
	}
	if seen {
		i.log.Info("import: duplicate batch", slog.String("path", f.Path))
		return outcomeDuplicate, i.finish(f.Path)
	}

	data, err := i.store.Read(f.Path)
	if err != nil {
		return outcomeRetry, err
	}
	b, err := parser.Parse(data)
	if err != nil {
		return outcomeFailed, i.fail(f.Path, err)
	}

	user := b.UserID
	if user == "" {
		user = i.defaultUser
	}
	res, err := i.svc.Import(ctx, wellness.Batch{
		UserID:     user,
		Categories: b.Categories,
		Goals:      b.Goals,
		Entries:    b.Entries,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrInvalid) {
			return outcomeFailed, i.fail(f.Path, err)
		}
		return outcomeRetry, err
	}

	if err := i.ledger.RecordImport(ctx, f.Path, f.Checksum); err != nil {
		return outcomeRetry, err
	}
	i.log.Info("import: batch imported",
		slog.String("path", f.Path),
		slog.String("user", user),
		slog.Int("categories", res.Categories),
		slog.Int("goals", res.Goals),
		slog.Int("entries", res.Entries))
	return outcomeImported, i.finish(f.Path)
}

// finish archives (or deletes) a processed batch.
func (i *Importer) finish(p string) error {
	if i.deleteDone {
		return i.store.Delete(p)
	}
	return i.store.Move(p, archivePath(ArchiveDir, p))
}

// fail moves a rejected batch to failed/ and writes the reason beside it.
func (i *Importer) fail(p string, cause error) error {
	i.log.Warn("import: batch rejected", slog.String("path", p), slog.String("error", cause.Error()))
	dst := archivePath(FailedDir, p)
	if err := i.store.Move(p, dst); err != nil {
		return err
	}
	return i.store.Write(dst+".err", []byte(cause.Error()+"\n"))
}

func archivePath(dir, p string) string {
	return path.Join(dir, filepath.ToSlash(p))
}
