// Package manager drives the sync loop: scan the root, classify records,
// push the required remote operations, and record the outcomes.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/alexjbarnes/ragsync/internal/errors"
	"github.com/alexjbarnes/ragsync/internal/ragflow"
	"github.com/alexjbarnes/ragsync/internal/scanner"
	"github.com/alexjbarnes/ragsync/internal/state"
	"github.com/alexjbarnes/ragsync/internal/store"
)

// Remote is the document-store API surface the manager drives. Satisfied
// by *ragflow.Client.
type Remote interface {
	Login(ctx context.Context, email, password string) (string, error)
	ListDocuments(ctx context.Context, token string) ([]ragflow.Document, error)
	UploadDocuments(ctx context.Context, token string, files []ragflow.UploadFile) ([]ragflow.UploadedDocument, error)
	DeleteDocuments(ctx context.Context, token string, ids []string) error
	StartParsing(ctx context.Context, token string, ids []string) error
	CancelParsing(ctx context.Context, token string, ids []string) error
}

// Config holds the manager's runtime settings.
type Config struct {
	Email    string
	Password string

	// Interval is the sleep between cycles.
	Interval time.Duration

	// ParseDocuments triggers parsing for uploaded documents.
	// PollParseStatus additionally watches the listing for completion.
	ParseDocuments  bool
	PollParseStatus bool
}

// Manager owns one sync loop. It is the record store's only writer and
// holds no record state in memory across cycles.
type Manager struct {
	store   *store.Store
	scanner *scanner.Scanner
	remote  Remote
	session *state.State
	cfg     Config
	logger  *slog.Logger

	token string
}

// New creates a manager wired to its collaborators.
func New(st *store.Store, sc *scanner.Scanner, remote Remote, session *state.State, cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		store:   st,
		scanner: sc,
		remote:  remote,
		session: session,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run executes sync cycles until ctx is cancelled. The first cycle runs
// immediately; a rejected login during it is fatal, any later failure is
// logged and retried after the interval.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.runCycle(ctx); err != nil {
		if errors.Is(err, apperrors.ErrInvalidCredentials) {
			return fmt.Errorf("initial authentication: %w", err)
		}

		m.logger.Error("sync cycle failed", slog.String("error", err.Error()))
	}

	timer := time.NewTimer(m.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("sync loop stopping")
			return ctx.Err()

		case <-timer.C:
			if err := m.runCycle(ctx); err != nil {
				m.logger.Error("sync cycle failed", slog.String("error", err.Error()))
			}

			timer.Reset(m.cfg.Interval)
		}
	}
}

// RunCycle executes exactly one scan-classify-reconcile pass.
func (m *Manager) RunCycle(ctx context.Context) error {
	return m.runCycle(ctx)
}

func (m *Manager) runCycle(ctx context.Context) error {
	if err := m.ensureSession(ctx); err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}

	m.recoverStale()

	scan, err := m.scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scanning: %w", err)
	}

	m.logger.Info("scan complete",
		slog.Int("inserted", scan.Inserted),
		slog.Int("updated", scan.Updated),
		slog.Int("unchanged", scan.Unchanged),
		slog.Int("skipped", scan.Skipped),
		slog.Int("removed", len(scan.Removed)),
	)

	// A failed class aborts only that class for this cycle; its records
	// keep their pre-call status and are retried next cycle.
	m.processRemoved(ctx, scan.Removed)

	if err := m.processNew(ctx); err != nil {
		m.logger.Error("processing new files", slog.String("error", err.Error()))
	}

	if err := m.processChanged(ctx); err != nil {
		m.logger.Error("processing changed files", slog.String("error", err.Error()))
	}

	if m.cfg.ParseDocuments {
		if err := m.processUploaded(ctx); err != nil {
			m.logger.Error("triggering parsing", slog.String("error", err.Error()))
		}

		if m.cfg.PollParseStatus {
			if err := m.processProcessing(ctx); err != nil {
				m.logger.Error("polling parse status", slog.String("error", err.Error()))
			}
		}
	}

	return nil
}

// ensureSession makes sure a token is available, preferring the cached
// one. A stale cached token is fine: the first remote call that rejects
// it triggers a re-login via callWithReauth.
func (m *Manager) ensureSession(ctx context.Context) error {
	if m.token != "" {
		return nil
	}

	if cached := m.session.Token(); cached != "" {
		m.logger.Debug("using cached session token")
		m.token = cached

		return nil
	}

	return m.login(ctx)
}

func (m *Manager) login(ctx context.Context) error {
	m.logger.Info("logging in", slog.String("email", m.cfg.Email))

	token, err := m.remote.Login(ctx, m.cfg.Email, m.cfg.Password)
	if err != nil {
		return err
	}

	m.token = token

	if err := m.session.SetToken(token); err != nil {
		m.logger.Warn("failed to cache session token", slog.String("error", err.Error()))
	}

	return nil
}

// callWithReauth invokes fn with the current token, re-authenticating
// and retrying exactly once if the remote signals session expiry.
func (m *Manager) callWithReauth(ctx context.Context, fn func(token string) error) error {
	err := fn(m.token)
	if err == nil || !errors.Is(err, apperrors.ErrInvalidToken) {
		return err
	}

	m.logger.Info("session expired, re-authenticating")

	m.token = ""
	if err := m.session.ClearToken(); err != nil {
		m.logger.Warn("failed to clear cached token", slog.String("error", err.Error()))
	}

	if err := m.login(ctx); err != nil {
		return err
	}

	return fn(m.token)
}

// recoverStale resets records a previous process left mid-upload. An
// Uploading row means the process died between marking and confirming;
// the upload may or may not have landed, so re-uploading is the safe
// side of the accepted duplicate-call trade-off.
func (m *Manager) recoverStale() {
	recs, err := m.store.ListByStatus(store.StatusUploading)
	if err != nil {
		m.logger.Warn("listing stale uploads", slog.String("error", err.Error()))
		return
	}

	for _, rec := range recs {
		m.logger.Warn("resetting record stranded mid-upload", slog.String("path", rec.Path))

		if err := m.store.UpdateStatus(rec.Path, store.StatusNew); err != nil {
			m.logger.Warn("resetting stale upload", slog.String("path", rec.Path), slog.String("error", err.Error()))
		}
	}
}

// processRemoved issues remote deletes for files that vanished from disk
// after reaching the remote. Their local rows are already gone, so a
// failed remote delete is never retried: that at-most-once bias keeps
// deletions from leaking back into the active set, at the cost of
// possibly orphaning remote documents. The divergence is logged loudly
// for operators rather than swallowed.
func (m *Manager) processRemoved(ctx context.Context, removed []store.Record) {
	if len(removed) == 0 {
		return
	}

	ids := make([]string, 0, len(removed))
	for _, rec := range removed {
		ids = append(ids, rec.RemoteID)
	}

	m.logger.Info("deleting remote documents for vanished files", slog.Int("count", len(ids)))

	err := m.callWithReauth(ctx, func(token string) error {
		return m.remote.DeleteDocuments(ctx, token, ids)
	})
	if err != nil {
		m.logger.Error("REMOTE DIVERGENCE: delete failed for vanished files; their remote documents are orphaned and need manual cleanup",
			slog.String("remote_ids", strings.Join(ids, ",")),
			slog.String("error", err.Error()),
		)
	}
}

// processNew uploads records the scanner just discovered.
func (m *Manager) processNew(ctx context.Context) error {
	recs, err := m.store.ListByStatus(store.StatusNew)
	if err != nil {
		return err
	}

	if len(recs) == 0 {
		return nil
	}

	return m.uploadBatch(ctx, recs, store.StatusNew)
}

// processChanged replaces the remote copy of records whose content
// changed: delete the stale document, then re-upload. The fresh upload
// gets a fresh remote id, so a record never holds two remote identities.
func (m *Manager) processChanged(ctx context.Context) error {
	recs, err := m.store.ListByStatus(store.StatusChanged)
	if err != nil {
		return err
	}

	if len(recs) == 0 {
		return nil
	}

	var staleIDs []string

	for _, rec := range recs {
		if rec.RemoteID != "" {
			staleIDs = append(staleIDs, rec.RemoteID)
		}
	}

	if len(staleIDs) > 0 {
		err := m.callWithReauth(ctx, func(token string) error {
			return m.remote.DeleteDocuments(ctx, token, staleIDs)
		})
		if err != nil {
			// Records stay Changed with their ids; the delete is retried
			// next cycle before anything is re-uploaded.
			return fmt.Errorf("deleting stale documents: %w", err)
		}

		// The old ids are gone remotely. Clear them now so a failed
		// re-upload next cycle does not delete ids twice.
		for _, rec := range recs {
			if rec.RemoteID == "" {
				continue
			}

			if err := m.store.UpdateStatusAndRemoteID(rec.Path, store.StatusChanged, ""); err != nil {
				return fmt.Errorf("clearing stale id for %s: %w", rec.Path, err)
			}
		}
	}

	return m.uploadBatch(ctx, recs, store.StatusChanged)
}

// uploadBatch uploads recs as one batch and resolves their remote ids.
// On any failure every record is reverted to revert so the next cycle
// retries the whole class.
func (m *Manager) uploadBatch(ctx context.Context, recs []store.Record, revert store.Status) error {
	paths := make([]string, 0, len(recs))
	files := make([]ragflow.UploadFile, 0, len(recs))
	seen := make(map[string]string, len(recs))

	for _, rec := range recs {
		if prev, dup := seen[rec.DisplayName]; dup {
			// Two paths mapping to one display name would make id
			// resolution assign one of them the wrong document. Fail
			// closed before anything reaches the remote.
			return fmt.Errorf("%w: %q used by %s and %s", apperrors.ErrNameAmbiguous, rec.DisplayName, prev, rec.Path)
		}

		seen[rec.DisplayName] = rec.Path
		paths = append(paths, rec.Path)
		files = append(files, ragflow.UploadFile{LocalPath: rec.Path, DisplayName: rec.DisplayName})
	}

	if applied, err := m.store.UpdateStatusAll(paths, store.StatusUploading); err != nil {
		m.revertStatuses(applied, revert)
		return fmt.Errorf("marking batch uploading: %w", err)
	}

	m.logger.Info("uploading documents", slog.Int("count", len(files)))

	var uploaded []ragflow.UploadedDocument

	err := m.callWithReauth(ctx, func(token string) error {
		var err error
		uploaded, err = m.remote.UploadDocuments(ctx, token, files)

		return err
	})
	if err != nil {
		m.revertStatuses(paths, revert)
		return fmt.Errorf("uploading batch: %w", err)
	}

	ids, err := m.resolveIDs(ctx, recs, uploaded)
	if err != nil {
		// The upload landed but the ids are unknown. Reverting means the
		// next cycle re-uploads; possible duplicate remote documents are
		// the accepted cost of never recording a guessed id.
		m.revertStatuses(paths, revert)
		return fmt.Errorf("resolving uploaded ids: %w", err)
	}

	for _, rec := range recs {
		if err := m.store.UpdateStatusAndRemoteID(rec.Path, store.StatusUploaded, ids[rec.DisplayName]); err != nil {
			return fmt.Errorf("recording upload of %s: %w", rec.Path, err)
		}

		m.logger.Debug("uploaded",
			slog.String("path", rec.Path),
			slog.String("remote_id", ids[rec.DisplayName]),
		)
	}

	return nil
}

// resolveIDs maps each record's display name to the remote id assigned
// during upload. Ids from the upload response win; otherwise the full
// listing is matched by name. Ambiguous or missing names fail closed —
// assigning the wrong id would silently corrupt every later operation
// on the record.
func (m *Manager) resolveIDs(ctx context.Context, recs []store.Record, uploaded []ragflow.UploadedDocument) (map[string]string, error) {
	byName := make(map[string]string)
	counts := make(map[string]int)

	if len(uploaded) > 0 {
		for _, doc := range uploaded {
			byName[doc.Name] = doc.ID
			counts[doc.Name]++
		}
	} else {
		var docs []ragflow.Document

		err := m.callWithReauth(ctx, func(token string) error {
			var err error
			docs, err = m.remote.ListDocuments(ctx, token)

			return err
		})
		if err != nil {
			return nil, err
		}

		for _, doc := range docs {
			byName[doc.Name] = doc.ID
			counts[doc.Name]++
		}
	}

	ids := make(map[string]string, len(recs))

	for _, rec := range recs {
		switch counts[rec.DisplayName] {
		case 0:
			return nil, fmt.Errorf("%w: %q", apperrors.ErrNameUnresolved, rec.DisplayName)
		case 1:
			ids[rec.DisplayName] = byName[rec.DisplayName]
		default:
			return nil, fmt.Errorf("%w: %q", apperrors.ErrNameAmbiguous, rec.DisplayName)
		}
	}

	return ids, nil
}

// processUploaded triggers parsing for documents the remote has accepted.
func (m *Manager) processUploaded(ctx context.Context) error {
	recs, err := m.store.ListByStatus(store.StatusUploaded)
	if err != nil {
		return err
	}

	if len(recs) == 0 {
		return nil
	}

	paths := make([]string, 0, len(recs))
	ids := make([]string, 0, len(recs))

	for _, rec := range recs {
		paths = append(paths, rec.Path)
		ids = append(ids, rec.RemoteID)
	}

	m.logger.Info("starting parsing", slog.Int("count", len(ids)))

	err = m.callWithReauth(ctx, func(token string) error {
		return m.remote.StartParsing(ctx, token, ids)
	})
	if err != nil {
		return fmt.Errorf("starting parsing: %w", err)
	}

	if _, err := m.store.UpdateStatusAll(paths, store.StatusProcessing); err != nil {
		return fmt.Errorf("marking batch processing: %w", err)
	}

	return nil
}

// processProcessing polls the listing for parse completion. Documents
// whose run finished become Processed; failed runs are cancelled and
// sent back to Uploaded so the next cycle re-triggers them.
func (m *Manager) processProcessing(ctx context.Context) error {
	recs, err := m.store.ListByStatus(store.StatusProcessing)
	if err != nil {
		return err
	}

	if len(recs) == 0 {
		return nil
	}

	var docs []ragflow.Document

	err = m.callWithReauth(ctx, func(token string) error {
		var err error
		docs, err = m.remote.ListDocuments(ctx, token)

		return err
	})
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}

	byID := make(map[string]ragflow.Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}

	for _, rec := range recs {
		doc, ok := byID[rec.RemoteID]
		if !ok {
			m.logger.Warn("processing document missing from remote listing",
				slog.String("path", rec.Path),
				slog.String("remote_id", rec.RemoteID),
			)

			continue
		}

		switch doc.Run {
		case ragflow.RunDone:
			if err := m.store.UpdateStatus(rec.Path, store.StatusProcessed); err != nil {
				return fmt.Errorf("marking %s processed: %w", rec.Path, err)
			}

			m.logger.Info("parsing complete", slog.String("path", rec.Path))

		case ragflow.RunFailed:
			m.logger.Warn("parsing failed, resetting for retry", slog.String("path", rec.Path))

			err := m.callWithReauth(ctx, func(token string) error {
				return m.remote.CancelParsing(ctx, token, []string{rec.RemoteID})
			})
			if err != nil {
				m.logger.Warn("cancelling failed parse", slog.String("path", rec.Path), slog.String("error", err.Error()))
				continue
			}

			if err := m.store.UpdateStatus(rec.Path, store.StatusUploaded); err != nil {
				return fmt.Errorf("resetting %s for reparse: %w", rec.Path, err)
			}
		}
	}

	return nil
}

// revertStatuses restores records to their pre-batch status after a
// failed remote call.
func (m *Manager) revertStatuses(paths []string, status store.Status) {
	if len(paths) == 0 {
		return
	}

	if _, err := m.store.UpdateStatusAll(paths, status); err != nil {
		m.logger.Error("reverting batch status", slog.String("error", err.Error()))
	}
}
