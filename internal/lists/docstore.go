package lists

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Document mirrors the wire shape of a list document in the remote store.
type Document struct {
	ID        string    `json:"id,omitempty"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Items     []string  `json:"items"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// DocstoreClient abstracts the owner-scoped document store the remote tier
// delegates to. The capability depends only on these five operations, never
// on the store's transport or SDK shape.
type DocstoreClient interface {
	// Ping reports whether the store is reachable with the configured
	// credentials. Cheap; used for initialization and health checks.
	Ping(ctx context.Context) bool

	Create(ctx context.Context, collection string, doc Document) (string, error)
	QueryByOwner(ctx context.Context, collection, ownerID string) ([]Document, error)
	Update(ctx context.Context, collection, id string, items []string) error
	Delete(ctx context.Context, collection, id string) error
}

// ErrDocumentMissing is returned by the HTTP client when the store reports
// 404 for a document id.
var ErrDocumentMissing = fmt.Errorf("document missing")

// HTTPDocstore talks JSON over HTTP to a document-store service.
type HTTPDocstore struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ DocstoreClient = (*HTTPDocstore)(nil)

// NewHTTPDocstore creates a client for the store at baseURL. apiKey may be
// empty for unauthenticated deployments.
func NewHTTPDocstore(baseURL, apiKey string) *HTTPDocstore {
	return &HTTPDocstore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Ping returns true if the store responds to GET /v1/health with 200.
func (c *HTTPDocstore) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return false
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type createResponse struct {
	ID string `json:"id"`
}

// Create stores a new document and returns the id the store assigned.
func (c *HTTPDocstore) Create(ctx context.Context, collection string, doc Document) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}

	url := fmt.Sprintf("%s/v1/collections/%s/documents", c.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var created createResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("store returned empty document id")
	}
	return created.ID, nil
}

type queryResponse struct {
	Documents []Document `json:"documents"`
}

// QueryByOwner returns every document in the collection owned by ownerID.
func (c *HTTPDocstore) QueryByOwner(ctx context.Context, collection, ownerID string) ([]Document, error) {
	url := fmt.Sprintf("%s/v1/collections/%s/documents?owner_id=%s", c.baseURL, collection, ownerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var result queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return result.Documents, nil
}

type updateRequest struct {
	Items     []string  `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Update replaces a document's items. Returns ErrDocumentMissing on 404.
func (c *HTTPDocstore) Update(ctx context.Context, collection, id string, items []string) error {
	body, err := json.Marshal(updateRequest{Items: items, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding update: %w", err)
	}

	url := fmt.Sprintf("%s/v1/collections/%s/documents/%s", c.baseURL, collection, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("patching document: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrDocumentMissing
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}
}

// Delete removes a document. Returns ErrDocumentMissing on 404.
func (c *HTTPDocstore) Delete(ctx context.Context, collection, id string) error {
	url := fmt.Sprintf("%s/v1/collections/%s/documents/%s", c.baseURL, collection, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrDocumentMissing
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}
}

func (c *HTTPDocstore) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(body) == 0 {
		return "(no body)"
	}
	return strings.TrimSpace(string(body))
}
