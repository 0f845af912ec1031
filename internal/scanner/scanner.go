// Package scanner walks the sync root, fingerprints files, and diffs the
// result against the record store.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/alexjbarnes/ragsync/internal/errors"
	"github.com/alexjbarnes/ragsync/internal/hash"
	"github.com/alexjbarnes/ragsync/internal/store"
)

// hashWorkers bounds concurrent fingerprint computation within one scan.
// Store writes stay sequential, so the net effect is order-independent.
const hashWorkers = 4

// Result summarizes one scan.
type Result struct {
	// Removed holds records whose path vanished from disk and that had
	// already reached the remote (remote id set). Their rows are gone
	// from the store by the time Scan returns; the caller owes the
	// remote a delete call for each.
	Removed []store.Record

	Inserted  int // new paths tracked this scan
	Updated   int // fingerprint changes detected
	Unchanged int // files whose content still matches
	Skipped   int // files that could not be hashed this cycle
}

// Scanner walks one root directory and keeps the record store in step
// with it.
type Scanner struct {
	root       string
	extensions map[string]struct{}
	algorithm  string
	store      *store.Store
	logger     *slog.Logger
}

// New creates a scanner over root. Extensions must carry their leading
// dot and are matched case-insensitively.
func New(root string, extensions []string, algorithm string, st *store.Store, logger *slog.Logger) *Scanner {
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}

	return &Scanner{
		root:       root,
		extensions: allowed,
		algorithm:  algorithm,
		store:      st,
		logger:     logger,
	}
}

type candidate struct {
	path        string
	displayName string
	fingerprint string
	failed      bool
}

// Scan prunes records whose files vanished, then walks the tree and
// records additions and content changes. Pruning runs strictly before
// the walk so a file that disappears and reappears between scans cannot
// resurrect a stale removal signal.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	result := &Result{}

	if err := s.prune(result); err != nil {
		return nil, err
	}

	candidates, err := s.collect(ctx)
	if err != nil {
		return nil, err
	}

	s.fingerprint(ctx, candidates)

	if err := s.apply(candidates, result); err != nil {
		return nil, err
	}

	return result, nil
}

// prune deletes records whose paths no longer exist on disk. Records
// that never reached the remote are dropped silently; the rest are
// reported so the reconciler can issue remote deletes.
func (s *Scanner) prune(result *Result) error {
	records, err := s.store.ListAll()
	if err != nil {
		return fmt.Errorf("listing records for prune: %w", err)
	}

	for _, rec := range records {
		_, err := os.Stat(rec.Path)
		if err == nil {
			continue
		}

		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("stat failed during prune, keeping record",
				slog.String("path", rec.Path),
				slog.String("error", err.Error()),
			)

			continue
		}

		if err := s.store.Delete(rec.Path); err != nil {
			return fmt.Errorf("pruning %s: %w", rec.Path, err)
		}

		if rec.RemoteID != "" {
			result.Removed = append(result.Removed, rec)
		}

		s.logger.Debug("pruned vanished file",
			slog.String("path", rec.Path),
			slog.Bool("remote_delete_needed", rec.RemoteID != ""),
		)
	}

	return nil
}

// collect walks the tree and gathers allowed-extension files. Hidden
// directories (dot-prefixed) are skipped recursively.
func (s *Scanner) collect(ctx context.Context) ([]*candidate, error) {
	var candidates []*candidate

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if d.IsDir() {
			if path != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		if _, ok := s.extensions[strings.ToLower(filepath.Ext(d.Name()))]; !ok {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return fmt.Errorf("relativizing %s: %w", path, err)
		}

		candidates = append(candidates, &candidate{
			path:        path,
			displayName: filepath.ToSlash(rel),
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", s.root, err)
	}

	return candidates, nil
}

// fingerprint hashes candidates with bounded parallelism. A file that
// cannot be hashed is logged and skipped for this cycle; it never aborts
// the scan.
func (s *Scanner) fingerprint(ctx context.Context, candidates []*candidate) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(hashWorkers)

	for _, c := range candidates {
		g.Go(func() error {
			if ctx.Err() != nil {
				c.failed = true
				return nil
			}

			sum, err := hash.File(c.path, s.algorithm)
			if err != nil {
				c.failed = true

				s.logger.Warn("hashing failed, skipping file this cycle",
					slog.String("path", c.path),
					slog.String("error", err.Error()),
				)

				return nil
			}

			c.fingerprint = sum

			return nil
		})
	}

	// Workers only ever return nil; failures are recorded per candidate.
	_ = g.Wait()
}

// apply diffs the fingerprinted candidates against the store.
func (s *Scanner) apply(candidates []*candidate, result *Result) error {
	for _, c := range candidates {
		if c.failed {
			result.Skipped++
			continue
		}

		rec, err := s.store.Get(c.path)

		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			if err := s.store.Insert(store.Record{
				Path:        c.path,
				DisplayName: c.displayName,
				Extension:   strings.ToLower(filepath.Ext(c.path)),
				Fingerprint: c.fingerprint,
				Status:      store.StatusNew,
			}); err != nil {
				return fmt.Errorf("tracking %s: %w", c.path, err)
			}

			result.Inserted++

			s.logger.Debug("tracking new file", slog.String("path", c.path))

		case err != nil:
			return fmt.Errorf("looking up %s: %w", c.path, err)

		case rec.Fingerprint == c.fingerprint:
			result.Unchanged++

		default:
			// A content change invalidates any in-flight upload or parse
			// state, whatever the prior status was.
			if err := s.store.UpdateFingerprintAndStatus(c.path, c.fingerprint, store.StatusChanged); err != nil {
				return fmt.Errorf("recording change for %s: %w", c.path, err)
			}

			result.Updated++

			s.logger.Debug("file changed", slog.String("path", c.path))
		}
	}

	return nil
}
