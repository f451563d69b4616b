// Package githubfetch implements the repository fetch adapter against the
// GitHub REST API. It downloads the default-branch tarball and flattens the
// text files into a single digest for analysis.
package githubfetch

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/repolens/repolens/config"
	"github.com/repolens/repolens/internal/core"
	"github.com/repolens/repolens/internal/domain/model"
)

// FetcherOptions groups dependencies for Fetcher.
type FetcherOptions struct {
	Config     config.GitHubConfig
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Fetcher retrieves repository content via the GitHub REST API.
type Fetcher struct {
	cfg    config.GitHubConfig
	http   *http.Client
	logger *slog.Logger
}

// NewFetcher constructs a new Fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Minute}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		cfg:    opts.Config,
		http:   hc,
		logger: logger,
	}
}

// repoMeta is the subset of the repository metadata endpoint we consume.
type repoMeta struct {
	DefaultBranch string `json:"default_branch"`
	Language      string `json:"language"`
	Stars         int    `json:"stargazers_count"`
	Description   string `json:"description"`
}

// Fetch downloads the repository and builds its code digest. Metrics come
// from the metadata endpoint plus the tarball walk and are only populated on
// request.
func (f *Fetcher) Fetch(ctx context.Context, repoURL string, includeMetrics bool) (*core.FetchResult, error) {
	owner, repo, err := parseOwnerRepo(repoURL)
	if err != nil {
		return nil, err
	}

	meta, err := f.fetchMeta(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	branch := meta.DefaultBranch
	if branch == "" {
		branch = "main"
	}

	digest, fileCount, totalBytes, err := f.fetchDigest(ctx, owner, repo, branch)
	if err != nil {
		return nil, err
	}

	result := &core.FetchResult{Content: digest}
	if includeMetrics {
		result.Metrics = model.RepoMetrics{
			FileCount:   fileCount,
			TotalBytes:  totalBytes,
			Language:    meta.Language,
			Stars:       meta.Stars,
			Description: meta.Description,
		}
	}

	f.logger.InfoContext(ctx, "repository fetched",
		"owner", owner,
		"repo", repo,
		"branch", branch,
		"files", fileCount,
		"digest_bytes", len(digest),
	)
	return result, nil
}

func (f *Fetcher) fetchMeta(ctx context.Context, owner, repo string) (*repoMeta, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s", strings.TrimRight(f.cfg.APIBaseURL, "/"), owner, repo)
	resp, err := f.doGet(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer f.closeBody(ctx, resp)

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("repository %s/%s not found", owner, repo)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("repository metadata: unexpected status %d", resp.StatusCode)
	}

	var meta repoMeta
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode repository metadata: %w", err)
	}
	return &meta, nil
}

func (f *Fetcher) fetchDigest(ctx context.Context, owner, repo, branch string) (string, int, int64, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/tarball/%s",
		strings.TrimRight(f.cfg.APIBaseURL, "/"), owner, repo, url.PathEscape(branch))
	resp, err := f.doGet(ctx, endpoint)
	if err != nil {
		return "", 0, 0, err
	}
	defer f.closeBody(ctx, resp)

	if resp.StatusCode != http.StatusOK {
		return "", 0, 0, fmt.Errorf("repository tarball: unexpected status %d", resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return "", 0, 0, fmt.Errorf("open tarball: %w", err)
	}
	defer func() {
		if cerr := gz.Close(); cerr != nil {
			f.logger.WarnContext(ctx, "close gzip reader", "error", cerr)
		}
	}()

	return f.walkTarball(tar.NewReader(gz))
}

// walkTarball flattens the archive's text files into one digest, honoring the
// per-file and total size caps. Files past the total cap still count toward
// the metrics so they reflect the repository, not the truncation.
func (f *Fetcher) walkTarball(tr *tar.Reader) (string, int, int64, error) {
	var (
		digest     strings.Builder
		fileCount  int
		totalBytes int64
		truncated  bool
	)

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", 0, 0, fmt.Errorf("read tarball entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		// GitHub prefixes every path with "<owner>-<repo>-<sha>/".
		name := hdr.Name
		if i := strings.IndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		if name == "" || !isTextPath(name) {
			continue
		}

		fileCount++
		totalBytes += hdr.Size

		if hdr.Size > f.cfg.MaxFileBytes {
			continue
		}
		if truncated || int64(digest.Len()) >= f.cfg.MaxDigestBytes {
			truncated = true
			continue
		}

		content, err := io.ReadAll(io.LimitReader(tr, f.cfg.MaxFileBytes))
		if err != nil {
			return "", 0, 0, fmt.Errorf("read %s: %w", name, err)
		}
		if looksBinary(content) {
			continue
		}

		digest.WriteString("===== ")
		digest.WriteString(name)
		digest.WriteString(" =====\n")
		digest.Write(content)
		digest.WriteString("\n\n")
	}

	return digest.String(), fileCount, totalBytes, nil
}

func (f *Fetcher) doGet(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if f.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.cfg.Token)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github request: %w", err)
	}
	return resp, nil
}

func (f *Fetcher) closeBody(ctx context.Context, resp *http.Response) {
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16)); err != nil {
		f.logger.DebugContext(ctx, "drain response body", "error", err)
	}
	if err := resp.Body.Close(); err != nil {
		f.logger.WarnContext(ctx, "close response body", "error", err)
	}
}

// parseOwnerRepo extracts the owner and repository name from a GitHub URL.
func parseOwnerRepo(repoURL string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(repoURL))
	if err != nil {
		return "", "", fmt.Errorf("parse repository URL: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host != "github.com" && host != "www.github.com" {
		return "", "", fmt.Errorf("unsupported repository host %q", u.Hostname())
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository URL %q is missing owner/name", repoURL)
	}
	owner := parts[0]
	repo := strings.TrimSuffix(parts[1], ".git")
	return owner, repo, nil
}

// textExtensions lists file extensions included in the digest.
var textExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".jsx": true,
	".tsx": true, ".rb": true, ".rs": true, ".java": true, ".kt": true,
	".c": true, ".h": true, ".cpp": true, ".hpp": true, ".cs": true,
	".php": true, ".swift": true, ".scala": true, ".sh": true, ".bash": true,
	".sql": true, ".proto": true, ".md": true, ".txt": true, ".json": true,
	".yaml": true, ".yml": true, ".toml": true, ".ini": true, ".cfg": true,
	".html": true, ".css": true, ".scss": true, ".xml": true, ".mod": true,
	".sum": true, ".dockerfile": true, ".tf": true, ".gradle": true,
}

var textBasenames = map[string]bool{
	"dockerfile": true, "makefile": true, "rakefile": true, "gemfile": true,
	"license": true, "readme": true, "procfile": true,
}

func isTextPath(name string) bool {
	base := strings.ToLower(path.Base(name))
	if textBasenames[base] {
		return true
	}
	return textExtensions[strings.ToLower(path.Ext(name))]
}

// looksBinary reports whether content contains a NUL in its first KiB, a
// cheap tell for binary files hiding behind a text extension.
func looksBinary(content []byte) bool {
	probe := content
	if len(probe) > 1024 {
		probe = probe[:1024]
	}
	return bytes.IndexByte(probe, 0) >= 0
}
