package e2e_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/ragsync/internal/hash"
	"github.com/alexjbarnes/ragsync/internal/manager"
	"github.com/alexjbarnes/ragsync/internal/ragflow"
	"github.com/alexjbarnes/ragsync/internal/scanner"
	"github.com/alexjbarnes/ragsync/internal/state"
	"github.com/alexjbarnes/ragsync/internal/store"
)

const (
	testEmail    = "e2e@example.com"
	testPassword = "e2e-password"
	testKBID     = "kb-e2e"
)

// fakeDocument is one document held by the fake remote.
type fakeDocument struct {
	ID      string
	Name    string
	Run     int
	Content []byte
}

// fakeRemote is an in-memory document store served over HTTP. It speaks
// the same JSON envelope and endpoints as the real API: login issues a
// token in the Authorization response header, every other endpoint
// validates that token and answers {code, data}.
type fakeRemote struct {
	mu         sync.Mutex
	docs       map[string]*fakeDocument
	nextID     int
	token      string
	loginCount int

	// returnUploadIDs controls whether the upload response includes the
	// created documents, or just data:true forcing list-based resolution.
	returnUploadIDs bool

	// parseRunResult is the run state documents land in after a parse
	// trigger. Defaults to done.
	parseRunResult int

	// rejectLogin makes every login attempt fail.
	rejectLogin bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		docs:            make(map[string]*fakeDocument),
		returnUploadIDs: true,
		parseRunResult:  ragflow.RunDone,
	}
}

func (f *fakeRemote) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /user/login", f.handleLogin)
	mux.HandleFunc("GET /document/list", f.handleList)
	mux.HandleFunc("POST /document/upload", f.handleUpload)
	mux.HandleFunc("POST /document/rm", f.handleDelete)
	mux.HandleFunc("POST /document/run", f.handleRun)

	return mux
}

// invalidateToken forces the next authenticated call to fail, simulating
// server-side session expiry.
func (f *fakeRemote) invalidateToken() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.token = ""
}

// documentNames returns the names of all documents currently held.
func (f *fakeRemote) documentNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.docs))
	for _, doc := range f.docs {
		names = append(names, doc.Name)
	}

	return names
}

// documentContent returns the stored content for the named document.
func (f *fakeRemote) documentContent(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, doc := range f.docs {
		if doc.Name == name {
			return string(doc.Content), true
		}
	}

	return "", false
}

func (f *fakeRemote) logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.loginCount
}

func writeEnvelope(w http.ResponseWriter, code int, message string, data any) {
	body := map[string]any{"code": code, "message": message}
	if data != nil {
		body["data"] = data
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeRemote) authorized(r *http.Request) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.token != "" && r.Header.Get("Authorization") == f.token
}

func (f *fakeRemote) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, 100, "bad request", nil)
		return
	}

	f.mu.Lock()
	reject := f.rejectLogin
	f.mu.Unlock()

	if reject || req.Email != testEmail || req.Password == "" {
		writeEnvelope(w, 100, "Email and password do not match!", nil)
		return
	}

	f.mu.Lock()
	f.loginCount++
	f.token = "session-" + strconv.Itoa(f.loginCount)
	token := f.token
	f.mu.Unlock()

	w.Header().Set("Authorization", token)
	writeEnvelope(w, 0, "", map[string]string{"email": req.Email})
}

func (f *fakeRemote) handleList(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(r) {
		writeEnvelope(w, 109, "please login", nil)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	if page < 1 || pageSize < 1 {
		writeEnvelope(w, 100, "bad paging", nil)
		return
	}

	f.mu.Lock()
	all := make([]ragflow.Document, 0, len(f.docs))
	for _, doc := range f.docs {
		all = append(all, ragflow.Document{ID: doc.ID, Name: doc.Name, Run: doc.Run})
	}
	f.mu.Unlock()

	start := (page - 1) * pageSize
	if start > len(all) {
		start = len(all)
	}

	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}

	writeEnvelope(w, 0, "", map[string]any{
		"docs":  all[start:end],
		"total": len(all),
	})
}

func (f *fakeRemote) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(r) {
		writeEnvelope(w, 109, "please login", nil)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeEnvelope(w, 100, "bad multipart body", nil)
		return
	}

	if r.FormValue("kb_id") != testKBID {
		writeEnvelope(w, 102, "knowledge base not found", nil)
		return
	}

	var created []ragflow.UploadedDocument

	f.mu.Lock()
	for _, header := range r.MultipartForm.File["file"] {
		file, err := header.Open()
		if err != nil {
			f.mu.Unlock()
			writeEnvelope(w, 100, "reading upload", nil)

			return
		}

		content, err := io.ReadAll(file)
		file.Close()

		if err != nil {
			f.mu.Unlock()
			writeEnvelope(w, 100, "reading upload", nil)

			return
		}

		f.nextID++
		id := fmt.Sprintf("doc-%d", f.nextID)
		f.docs[id] = &fakeDocument{
			ID:      id,
			Name:    header.Filename,
			Run:     ragflow.RunUnstarted,
			Content: content,
		}
		created = append(created, ragflow.UploadedDocument{ID: id, Name: header.Filename})
	}
	f.mu.Unlock()

	if f.returnUploadIDs {
		writeEnvelope(w, 0, "", created)
		return
	}

	writeEnvelope(w, 0, "", true)
}

func (f *fakeRemote) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(r) {
		writeEnvelope(w, 109, "please login", nil)
		return
	}

	var req struct {
		DocIDs []string `json:"doc_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, 100, "bad request", nil)
		return
	}

	f.mu.Lock()
	for _, id := range req.DocIDs {
		delete(f.docs, id)
	}
	f.mu.Unlock()

	writeEnvelope(w, 0, "", true)
}

func (f *fakeRemote) handleRun(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(r) {
		writeEnvelope(w, 109, "please login", nil)
		return
	}

	var req struct {
		DocIDs []string `json:"doc_ids"`
		Run    int      `json:"run"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, 100, "bad request", nil)
		return
	}

	f.mu.Lock()
	for _, id := range req.DocIDs {
		doc, ok := f.docs[id]
		if !ok {
			continue
		}

		switch req.Run {
		case 1:
			// Parsing "completes" instantly in the configured state.
			doc.Run = f.parseRunResult
		case 2:
			doc.Run = ragflow.RunCancelled
		}
	}
	f.mu.Unlock()

	writeEnvelope(w, 0, "", true)
}

// harness wires the full sync stack against a fake remote: real record
// store, session cache, scanner, HTTP client, and manager.
type harness struct {
	root   string
	remote *fakeRemote
	store  *store.Store
	mgr    *manager.Manager
}

func newHarness(t *testing.T, cfg manager.Config) *harness {
	t.Helper()

	remote := newFakeRemote()

	ts := httptest.NewServer(remote.handler())
	t.Cleanup(ts.Close)

	root := t.TempDir()
	dataDir := t.TempDir()

	st, err := store.Open(filepath.Join(dataDir, "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	session, err := state.Load(filepath.Join(dataDir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })

	logger := slog.New(slog.DiscardHandler)
	client := ragflow.NewClient(ts.URL, testKBID, ts.Client())
	sc := scanner.New(root, []string{".md", ".txt"}, hash.SHA256, st, logger)

	cfg.Email = testEmail
	cfg.Password = testPassword

	return &harness{
		root:   root,
		remote: remote,
		store:  st,
		mgr:    manager.New(st, sc, client, session, cfg, logger),
	}
}

func (h *harness) write(t *testing.T, rel, content string) string {
	t.Helper()

	path := filepath.Join(h.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}
