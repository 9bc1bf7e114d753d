// Package drive is a read-only client for the source document store's
// REST API (Drive v3 surface: file listing, full-text search, content
// export, and per-file permission listing).
package drive

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"time"

	"authz-rag/internal/models"
)

const pageSize = 100

// Client talks to the source document store.
type Client struct {
	baseURL     string
	accessToken string
	http        *http.Client
}

// NewClient creates a client for the store API at baseURL (e.g.
// "https://www.googleapis.com/drive/v3"), authenticating with the
// given OAuth access token.
func NewClient(baseURL, accessToken string) *Client {
	return &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		http:        &http.Client{Timeout: 60 * time.Second},
	}
}

type fileResource struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	WebViewLink string `json:"webViewLink"`
	Description string `json:"description"`
}

type fileList struct {
	NextPageToken string         `json:"nextPageToken"`
	Files         []fileResource `json:"files"`
}

// ListFolder fetches every document in the given folder, content
// included.
func (c *Client) ListFolder(folderID string) ([]models.Document, error) {
	query := fmt.Sprintf("'%s' in parents and trashed = false", folderID)

	var docs []models.Document
	pageToken := ""
	for {
		page, err := c.listFiles(query, pageToken)
		if err != nil {
			return nil, err
		}

		for _, f := range page.Files {
			doc, err := c.toDocument(f)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}

		if page.NextPageToken == "" {
			return docs, nil
		}
		pageToken = page.NextPageToken
	}
}

// Search returns a lazy sequence of documents in the folder matching
// the full-text query, at most limit of them (limit <= 0 means no
// cap). Pages are fetched on demand as the sequence is consumed, so an
// early break avoids further requests.
func (c *Client) Search(folderID, query string, limit int) iter.Seq2[models.Document, error] {
	q := fmt.Sprintf("'%s' in parents and trashed = false and fullText contains '%s'", folderID, query)

	return func(yield func(models.Document, error) bool) {
		yielded := 0
		pageToken := ""
		for {
			page, err := c.listFiles(q, pageToken)
			if err != nil {
				yield(models.Document{}, err)
				return
			}

			for _, f := range page.Files {
				if limit > 0 && yielded >= limit {
					return
				}
				doc, err := c.toDocument(f)
				if !yield(doc, err) || err != nil {
					return
				}
				yielded++
			}

			if page.NextPageToken == "" || (limit > 0 && yielded >= limit) {
				return
			}
			pageToken = page.NextPageToken
		}
	}
}

// ListGrants fetches the access-control entries on a file. Entries
// without a principal email (domain- or link-scoped sharing) come back
// with an empty EmailAddress.
func (c *Client) ListGrants(fileID string) ([]models.Grant, error) {
	params := url.Values{}
	params.Set("fields", "permissions(emailAddress, role)")

	body, err := c.get(fmt.Sprintf("/files/%s/permissions", url.PathEscape(fileID)), params)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions for %s: %w", fileID, err)
	}

	var result struct {
		Permissions []models.Grant `json:"permissions"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions for %s: %w", fileID, err)
	}

	return result.Permissions, nil
}

func (c *Client) listFiles(query, pageToken string) (*fileList, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("fields", "nextPageToken, files(id, name, webViewLink, description)")
	params.Set("pageSize", fmt.Sprintf("%d", pageSize))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	body, err := c.get("/files", params)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	var page fileList
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to unmarshal file list: %w", err)
	}
	return &page, nil
}

func (c *Client) toDocument(f fileResource) (models.Document, error) {
	content, err := c.exportContent(f.ID)
	if err != nil {
		return models.Document{}, err
	}
	return models.Document{
		ID:      f.ID,
		Name:    f.Name,
		Source:  f.WebViewLink,
		Content: content,
		Summary: f.Description,
	}, nil
}

func (c *Client) exportContent(fileID string) (string, error) {
	params := url.Values{}
	params.Set("mimeType", "text/plain")

	body, err := c.get(fmt.Sprintf("/files/%s/export", url.PathEscape(fileID)), params)
	if err != nil {
		return "", fmt.Errorf("failed to export file %s: %w", fileID, err)
	}
	return string(body), nil
}

func (c *Client) get(path string, params url.Values) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("store API returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
