// Package ragflow is an HTTP client for the remote document-store API:
// session login, paginated listing, multipart upload, deletion, and
// parse-run control.
package ragflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	apperrors "github.com/alexjbarnes/ragsync/internal/errors"
)

// TransientError wraps an error that is likely temporary and safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError, meaning the caller should retry after a backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout is the timeout for the default HTTP client used
	// when no custom client is provided. A hung remote call stalls the
	// whole sync loop, so every call gets a deadline.
	httpClientTimeout = 30 * time.Second

	// maxAPIResponseBytes caps response body reads to prevent a
	// misbehaving server from consuming unbounded memory.
	maxAPIResponseBytes = 4 * 1024 * 1024

	// listPageSize is the page size for document listing. The remote
	// caps page_size at 100 per call.
	listPageSize = 100
)

// Remote envelope codes.
const (
	codeOK = 0

	// codeAuthFailed is returned when the session token is missing,
	// invalid, or expired.
	codeAuthFailed = 109

	// codeUnauthorized is the HTTP-status-shaped variant of codeAuthFailed
	// some deployments return in the envelope.
	codeUnauthorized = 401
)

// Client talks to the remote document-store REST API. All methods take
// the session token obtained from Login; the client itself is stateless.
type Client struct {
	httpClient *http.Client
	baseURL    string
	kbID       string
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host. This prevents the session token
// from leaking to third-party domains.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates a client for the document store at baseURL, scoped to
// one knowledge base. If httpClient is nil, a client with a 30-second
// timeout and same-host redirect policy is created.
func NewClient(baseURL, kbID string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		kbID:       kbID,
	}
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// do sends a request and returns the raw response body after transport
// and HTTP-status checks. Envelope codes are checked separately because
// Login needs the response headers before the envelope.
func (c *Client) do(req *http.Request) ([]byte, http.Header, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := fmt.Errorf("sending request to %s: %w", req.URL.Path, err)
		// Network errors (timeouts, connection refused, DNS failures)
		// are transient by nature.
		return nil, nil, &TransientError{Err: wrapped}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("reading response from %s: %w", req.URL.Path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidToken, req.URL.Path)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("API %s returned status %d: %s", req.URL.Path, resp.StatusCode, sanitizeResponseBody(respBody))
		if isTransientStatus(resp.StatusCode) {
			return nil, nil, &TransientError{Err: err}
		}

		return nil, nil, err
	}

	return respBody, resp.Header, nil
}

// checkEnvelope inspects the {code, message} envelope the remote wraps
// every JSON response in. The envelope is peeked before typed decoding
// so auth expiry and validation failures map to the right sentinel.
func checkEnvelope(endpoint string, body []byte) error {
	code := gjson.GetBytes(body, "code")
	if !code.Exists() {
		return fmt.Errorf("API %s: response missing envelope code: %s", endpoint, sanitizeResponseBody(body))
	}

	switch code.Int() {
	case codeOK:
		return nil
	case codeAuthFailed, codeUnauthorized:
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidToken, endpoint)
	default:
		msg := gjson.GetBytes(body, "message").Str
		if msg == "" {
			msg = "code " + code.Raw
		}

		return fmt.Errorf("%w: %s: %s", apperrors.ErrRemoteRejected, endpoint, msg)
	}
}

func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	return false
}

// postJSON sends a JSON POST and returns the verified response body.
func (c *Client) postJSON(ctx context.Context, endpoint, token string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshalling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	respBody, _, err := c.do(req)
	if err != nil {
		return nil, err
	}

	if err := checkEnvelope(endpoint, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// Login authenticates with email and password and returns the session
// token issued in the Authorization response header. The password is
// RSA-encrypted under the fixed login key before it leaves the process.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	encrypted, err := EncryptPassword(password)
	if err != nil {
		return "", fmt.Errorf("preparing login password: %w", err)
	}

	payload, err := json.Marshal(loginRequest{Email: email, Password: encrypted})
	if err != nil {
		return "", fmt.Errorf("marshalling login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/user/login", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating login request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	respBody, header, err := c.do(req)
	if err != nil {
		// There is no session yet, so a 401 here means the credentials
		// were rejected, not that a token expired.
		if errors.Is(err, apperrors.ErrInvalidToken) {
			return "", fmt.Errorf("%w: login rejected", apperrors.ErrInvalidCredentials)
		}

		return "", err
	}

	if code := gjson.GetBytes(respBody, "code").Int(); code != codeOK {
		msg := gjson.GetBytes(respBody, "message").Str
		return "", fmt.Errorf("%w: %s", apperrors.ErrInvalidCredentials, msg)
	}

	token := header.Get("Authorization")
	if token == "" {
		return "", fmt.Errorf("%w: login response carried no token", apperrors.ErrInvalidCredentials)
	}

	return token, nil
}

// ListDocuments returns every document in the knowledge base, flattening
// the remote's pagination. Any page failure surfaces ErrListIncomplete
// with no partial result, so callers never act on a truncated catalogue.
func (c *Client) ListDocuments(ctx context.Context, token string) ([]Document, error) {
	var docs []Document

	for page := 1; ; page++ {
		data, err := c.listPage(ctx, token, page)
		if err != nil {
			if errors.Is(err, apperrors.ErrInvalidToken) {
				return nil, err
			}

			return nil, fmt.Errorf("%w: page %d: %w", apperrors.ErrListIncomplete, page, err)
		}

		docs = append(docs, data.Docs...)

		if len(data.Docs) == 0 || len(docs) >= data.Total {
			return docs, nil
		}
	}
}

func (c *Client) listPage(ctx context.Context, token string, page int) (*listData, error) {
	query := url.Values{}
	query.Set("kb_id", c.kbID)
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(listPageSize))

	endpoint := "/document/list"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", token)

	respBody, _, err := c.do(req)
	if err != nil {
		return nil, err
	}

	if err := checkEnvelope(endpoint, respBody); err != nil {
		return nil, err
	}

	var resp struct {
		Data listData `json:"data"`
	}

	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", endpoint, err)
	}

	return &resp.Data, nil
}

// UploadDocuments uploads the given files as one multipart batch. The
// whole batch is accepted or the call fails. When the remote includes
// the created documents in its response their ids are returned; callers
// fall back to list-and-match when the slice comes back empty.
func (c *Client) UploadDocuments(ctx context.Context, token string, files []UploadFile) ([]UploadedDocument, error) {
	if len(files) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("kb_id", c.kbID); err != nil {
		return nil, fmt.Errorf("writing kb_id field: %w", err)
	}

	for _, file := range files {
		part, err := writer.CreateFormFile("file", file.DisplayName)
		if err != nil {
			return nil, fmt.Errorf("creating form file %s: %w", file.DisplayName, err)
		}

		f, err := os.Open(file.LocalPath) //nolint:gosec // G304: paths come from the directory walk
		if err != nil {
			return nil, fmt.Errorf("opening %s for upload: %w", file.LocalPath, err)
		}

		_, err = io.Copy(part, f)
		f.Close()

		if err != nil {
			return nil, fmt.Errorf("reading %s for upload: %w", file.LocalPath, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing multipart body: %w", err)
	}

	endpoint := "/document/upload"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", token)

	respBody, _, err := c.do(req)
	if err != nil {
		return nil, err
	}

	if err := checkEnvelope(endpoint, respBody); err != nil {
		return nil, err
	}

	// Older deployments return data:true; newer ones include the created
	// documents. Only decode ids when the data field is an array.
	if !gjson.GetBytes(respBody, "data").IsArray() {
		return nil, nil
	}

	var resp struct {
		Data []UploadedDocument `json:"data"`
	}

	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", endpoint, err)
	}

	return resp.Data, nil
}

// DeleteDocuments removes the given documents from the knowledge base.
func (c *Client) DeleteDocuments(ctx context.Context, token string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := c.postJSON(ctx, "/document/rm", token, deleteRequest{DocIDs: ids}); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}

	return nil
}

// StartParsing triggers parsing for the given documents.
func (c *Client) StartParsing(ctx context.Context, token string, ids []string) error {
	return c.run(ctx, token, ids, 1)
}

// CancelParsing cancels in-flight parsing for the given documents.
func (c *Client) CancelParsing(ctx context.Context, token string, ids []string) error {
	return c.run(ctx, token, ids, 2)
}

func (c *Client) run(ctx context.Context, token string, ids []string, run int) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := c.postJSON(ctx, "/document/run", token, runRequest{DocIDs: ids, Run: run, Delete: "false"}); err != nil {
		return fmt.Errorf("setting parse run state: %w", err)
	}

	return nil
}
