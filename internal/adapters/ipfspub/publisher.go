// Package ipfspub implements report publication against the IPFS HTTP API.
package ipfspub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/repolens/repolens/config"
)

// PublisherOptions groups dependencies for Publisher.
type PublisherOptions struct {
	Config     config.IPFSConfig
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Publisher pushes report documents to an IPFS node and returns the content
// hash. The same bytes always yield the same hash, which is what makes
// repeated publication harmless.
type Publisher struct {
	apiURL string
	http   *http.Client
	logger *slog.Logger
}

// NewPublisher constructs a new Publisher.
func NewPublisher(opts PublisherOptions) *Publisher {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		apiURL: strings.TrimRight(opts.Config.APIURL, "/"),
		http:   hc,
		logger: logger,
	}
}

// addResponse is the node's reply to /api/v0/add.
type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Publish adds the content to the node and returns its hash.
func (p *Publisher) Publish(ctx context.Context, content []byte) (string, error) {
	if len(content) == 0 {
		return "", errors.New("content is empty")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "report.json")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close form writer: %w", err)
	}

	// The IPFS RPC API only accepts POST.
	endpoint := p.apiURL + "/api/v0/add?cid-version=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ipfs add: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			p.logger.WarnContext(ctx, "close response body", "error", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ipfs add: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var added addResponse
	if err := json.NewDecoder(resp.Body).Decode(&added); err != nil {
		return "", fmt.Errorf("decode ipfs response: %w", err)
	}
	if added.Hash == "" {
		return "", errors.New("ipfs response carried no hash")
	}

	p.logger.InfoContext(ctx, "content published", "hash", added.Hash, "bytes", len(content))
	return added.Hash, nil
}
