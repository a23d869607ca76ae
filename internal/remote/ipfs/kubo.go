package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// KuboClient is an HTTP client for the Kubo (IPFS) daemon API.
type KuboClient struct {
	apiURL string
	client *http.Client
}

// NewKuboClient creates a client for the Kubo API at the given URL,
// e.g. http://127.0.0.1:5001/api/v0.
func NewKuboClient(apiURL string) *KuboClient {
	return &KuboClient{
		apiURL: strings.TrimRight(apiURL, "/"),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// errStatus carries a non-200 reply so callers can classify it.
type errStatus struct {
	op   string
	code int
	body string
}

func (e *errStatus) Error() string {
	return fmt.Sprintf("ipfs %s: status %d: %s", e.op, e.code, e.body)
}

func (k *KuboClient) post(ctx context.Context, op, path string, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.apiURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("ipfs %s: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipfs %s: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &errStatus{op: op, code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

// IsAvailable checks if the Kubo daemon is reachable.
func (k *KuboClient) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	resp, err := k.post(ctx, "id", "/id", "", nil)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Add uploads content as a single raw-leaf CIDv1 block, pins it and
// returns the CID.
func (k *KuboClient) Add(ctx context.Context, content []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "data")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("write form data: %w", err)
	}
	w.Close()

	resp, err := k.post(ctx, "add", "/add?cid-version=1&raw-leaves=true&pin=true", w.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Hash string `json:"Hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("ipfs add: parse response: %w", err)
	}
	return result.Hash, nil
}

// Cat retrieves content from IPFS by CID.
func (k *KuboClient) Cat(ctx context.Context, cid string) ([]byte, error) {
	resp, err := k.post(ctx, "cat", "/cat?arg="+url.QueryEscape(cid), "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
