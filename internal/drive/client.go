package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/alexjbarnes/drive-sync/internal/errors"
	"github.com/tidwall/gjson"
)

const (
	defaultBaseURL   = "https://www.googleapis.com/drive/v3"
	defaultUploadURL = "https://www.googleapis.com/upload/drive/v3"

	// listFields is the metadata projection requested on every listing.
	listFields = "nextPageToken, files(id, name, mimeType, modifiedTime, md5Checksum, size)"

	// listPageSize caps one page of a child listing.
	listPageSize = 1000
)

// TokenSource supplies bearer tokens for API requests. Invalidate is
// called when the store rejects a token so the next Token call performs
// a fresh exchange.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Client talks to the remote store's REST API. All calls are blocking
// request-response; pagination is handled internally so callers see one
// complete child listing per folder.
type Client struct {
	httpClient *http.Client
	baseURL    string
	uploadURL  string
	tokens     TokenSource
}

// NewClient creates an API client with the given http.Client and token
// source. If httpClient is nil, http.DefaultClient is used.
func NewClient(httpClient *http.Client, tokens TokenSource) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    defaultBaseURL,
		uploadURL:  defaultUploadURL,
		tokens:     tokens,
	}
}

// SetEndpoints overrides the API and upload base URLs. Empty strings
// keep the defaults. Used for self-hosted stores and tests.
func (c *Client) SetEndpoints(api, upload string) {
	if api != "" {
		c.baseURL = strings.TrimRight(api, "/")
	}
	if upload != "" {
		c.uploadURL = strings.TrimRight(upload, "/")
	}
}

// do sends an authenticated request and returns the response. A 401 is
// retried once with a freshly exchanged token; a second 401 surfaces as
// ErrInvalidToken.
func (c *Client) do(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("obtaining token: %w", err)
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrAPIRequest, err)
		}

		if resp.StatusCode == http.StatusUnauthorized {
			resp.Body.Close()
			c.tokens.Invalidate()
			if attempt == 0 {
				continue
			}
			return nil, apperrors.ErrInvalidToken
		}

		return resp, nil
	}
}

// apiError turns a non-2xx response into an error, preferring the
// store's own error message when the body carries one.
func apiError(endpoint string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if msg := gjson.GetBytes(body, "error.message").Str; msg != "" {
		return fmt.Errorf("%w: %s (%d): %s", apperrors.ErrAPIRequest, endpoint, resp.StatusCode, msg)
	}
	return fmt.Errorf("%w: %s returned status %d: %s", apperrors.ErrAPIRequest, endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
}

// escapeQueryValue escapes a name for embedding in a files query string.
func escapeQueryValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// ListChildren returns the metadata of every non-trashed item whose
// parent is folderID, following pagination until the listing is
// complete.
func (c *Client) ListChildren(ctx context.Context, folderID string) ([]Item, error) {
	query := fmt.Sprintf("'%s' in parents and trashed = false", escapeQueryValue(folderID))

	var items []Item
	pageToken := ""
	for {
		page, next, err := c.listPage(ctx, query, pageToken)
		if err != nil {
			return nil, err
		}
		items = append(items, page...)

		if next == "" {
			return items, nil
		}
		pageToken = next
	}
}

// FindByName returns the first non-trashed item with the given name
// under parentID, or nil if none exists. When folderOnly is set, only
// folder items match. First match is best-effort: the store permits
// duplicate names in one parent.
func (c *Client) FindByName(ctx context.Context, name, parentID string, folderOnly bool) (*Item, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		escapeQueryValue(name), escapeQueryValue(parentID))
	if folderOnly {
		query += fmt.Sprintf(" and mimeType = '%s'", FolderMIMEType)
	}

	items, _, err := c.listPage(ctx, query, "")
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// listPage fetches one page of a files query.
func (c *Client) listPage(ctx context.Context, query, pageToken string) ([]Item, string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("fields", listFields)
	params.Set("pageSize", fmt.Sprint(listPageSize))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}
	endpoint := c.baseURL + "/files?" + params.Encode()

	resp, err := c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", apiError("/files", resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading listing response: %w", err)
	}

	root := gjson.ParseBytes(body)
	if !root.Get("files").Exists() {
		return nil, "", fmt.Errorf("%w: listing response has no files array", apperrors.ErrAPIResponse)
	}

	var items []Item
	for _, v := range root.Get("files").Array() {
		items = append(items, itemFromJSON(v))
	}

	return items, root.Get("nextPageToken").Str, nil
}

// CreateFolder creates a folder under parentID and returns its id.
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"name":     name,
		"mimeType": FolderMIMEType,
		"parents":  []string{parentID},
	})
	if err != nil {
		return "", fmt.Errorf("marshalling folder metadata: %w", err)
	}

	endpoint := c.baseURL + "/files?fields=id"
	resp, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError("/files", resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading create response: %w", err)
	}

	id := gjson.GetBytes(body, "id").Str
	if id == "" {
		return "", fmt.Errorf("%w: create folder response has no id", apperrors.ErrAPIResponse)
	}

	return id, nil
}

// Upload sends the content of localPath to the store. With an empty
// existingID a new file named name is created under parentID; otherwise
// the existing file's content is replaced in place. Returns the id of
// the resulting file.
//
// The whole file is buffered into the multipart body; chunked resumable
// uploads are out of scope.
func (c *Client) Upload(ctx context.Context, localPath, parentID, name, existingID string) (string, error) {
	content, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", localPath, err)
	}

	meta := map[string]any{"name": name}
	if existingID == "" {
		meta["parents"] = []string{parentID}
	}

	body, contentType, err := multipartBody(meta, content)
	if err != nil {
		return "", err
	}

	method := http.MethodPost
	endpoint := c.uploadURL + "/files?uploadType=multipart&fields=id"
	if existingID != "" {
		method = http.MethodPatch
		endpoint = c.uploadURL + "/files/" + url.PathEscape(existingID) + "?uploadType=multipart&fields=id"
	}

	resp, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError("/upload/files", resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading upload response: %w", err)
	}

	id := gjson.GetBytes(respBody, "id").Str
	if id == "" {
		return "", fmt.Errorf("%w: upload response has no id", apperrors.ErrAPIResponse)
	}

	return id, nil
}

// multipartBody builds a multipart/related request body with a JSON
// metadata part followed by the raw content part.
func multipartBody(meta map[string]any, content []byte) ([]byte, string, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, "", fmt.Errorf("marshalling upload metadata: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	part, err := w.CreatePart(metaHeader)
	if err != nil {
		return nil, "", fmt.Errorf("creating metadata part: %w", err)
	}
	if _, err := part.Write(metaJSON); err != nil {
		return nil, "", fmt.Errorf("writing metadata part: %w", err)
	}

	contentHeader := textproto.MIMEHeader{}
	contentHeader.Set("Content-Type", "application/octet-stream")
	part, err = w.CreatePart(contentHeader)
	if err != nil {
		return nil, "", fmt.Errorf("creating content part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", fmt.Errorf("writing content part: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}

	return buf.Bytes(), "multipart/related; boundary=" + w.Boundary(), nil
}

// Download streams the content of the file with the given id into
// destPath, creating or truncating it. Returns the number of bytes
// written. The destination is written via a temp file and rename so a
// failed transfer never leaves a half-written file behind.
func (c *Client) Download(ctx context.Context, id, destPath string) (int64, error) {
	endpoint := c.baseURL + "/files/" + url.PathEscape(id) + "?alt=media"

	resp, err := c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("%w: id %s", apperrors.ErrItemNotFound, id)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, apiError("/files/"+id, resp)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".drive-sync-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("writing %s: %w", destPath, err)
	}

	if err := os.Rename(tmpName, destPath); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("moving download into place: %w", err)
	}

	return n, nil
}
