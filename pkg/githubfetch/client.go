// Package githubfetch retrieves the text files of a public GitHub repository
// for repository grading. Results are capped to a file ceiling and sorted by
// path so that prompt content is stable across repeated runs.
package githubfetch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://api.github.com"

const fetchConcurrency = 10

// RepoFile is one fetched repository file.
type RepoFile struct {
	Path    string
	Name    string
	Content string
	Size    int64
}

// Fetcher lists a repository's graded files. Implemented by Client and faked
// in tests.
type Fetcher interface {
	FetchRepositoryFiles(ctx context.Context, repoURL string, maxFiles int) ([]RepoFile, error)
}

// Client talks to the GitHub REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     zerolog.Logger
}

// NewClient builds a GitHub client. The token is optional; unauthenticated
// requests work for public repositories at a lower rate limit.
func NewClient(token string, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		token:      token,
		logger:     logger.With().Str("component", "github_client").Logger(),
	}
}

// WithBaseURL points the client at a different API host. Used by tests.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

var repoURLPattern = regexp.MustCompile(`github\.com/([\w.\-]+)/([\w.\-]+)`)

// ParseRepoURL extracts owner and repo from a GitHub URL.
func ParseRepoURL(repoURL string) (owner, repo string, err error) {
	match := repoURLPattern.FindStringSubmatch(repoURL)
	if match == nil {
		return "", "", fmt.Errorf("not a github repository url: %s", repoURL)
	}
	repo = strings.TrimSuffix(match[2], ".git")
	return match[1], repo, nil
}

// codeExtensions is the allowlist of file types worth sending to the grader.
var codeExtensions = map[string]bool{
	".py": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".java": true, ".cpp": true, ".c": true, ".h": true, ".hpp": true,
	".cs": true, ".go": true, ".rs": true, ".rb": true, ".php": true,
	".swift": true, ".kt": true, ".dart": true, ".scala": true, ".ex": true,
	".vue": true, ".svelte": true, ".html": true, ".css": true, ".scss": true,
	".json": true, ".xml": true, ".yaml": true, ".yml": true, ".toml": true,
	".ini": true, ".cfg": true, ".conf": true, ".sh": true, ".bat": true,
	".sql": true, ".md": true, ".txt": true,
}

var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true, "vendor": true,
	".venv": true, "venv": true, "dist": true, "build": true, ".next": true,
	".idea": true, ".vscode": true, "target": true, "bin": true, "obj": true,
	"coverage": true, ".cache": true,
}

type treeResponse struct {
	Tree      []treeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

type repoInfoResponse struct {
	DefaultBranch string `json:"default_branch"`
}

type contentResponse struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

// FetchRepositoryFiles returns up to maxFiles graded-relevant files, sorted
// by path. Individual file failures are skipped, not fatal.
func (c *Client) FetchRepositoryFiles(ctx context.Context, repoURL string, maxFiles int) ([]RepoFile, error) {
	owner, repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	branch, err := c.defaultBranch(ctx, owner, repo)
	if err != nil {
		return nil, err
	}

	var tree treeResponse
	treeURL := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", c.baseURL, owner, repo, branch)
	if err := c.getJSON(ctx, treeURL, &tree); err != nil {
		return nil, fmt.Errorf("listing repository tree: %w", err)
	}

	selected := make([]treeEntry, 0, maxFiles)
	for _, entry := range tree.Tree {
		if entry.Type != "blob" || !wantPath(entry.Path) {
			continue
		}
		selected = append(selected, entry)
		if len(selected) >= maxFiles {
			c.logger.Warn().Str("repo", owner+"/"+repo).Int("ceiling", maxFiles).Msg("repository file ceiling reached")
			break
		}
	}

	files := make([]RepoFile, len(selected))
	sem := make(chan struct{}, fetchConcurrency)
	var wg sync.WaitGroup
	for i, entry := range selected {
		wg.Add(1)
		go func(slot int, entry treeEntry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			content, err := c.fileContent(ctx, owner, repo, entry.Path)
			if err != nil {
				c.logger.Warn().Err(err).Str("path", entry.Path).Msg("skipping unreadable file")
				return
			}
			files[slot] = RepoFile{
				Path:    entry.Path,
				Name:    path.Base(entry.Path),
				Content: content,
				Size:    entry.Size,
			}
		}(i, entry)
	}
	wg.Wait()

	fetched := files[:0]
	for _, file := range files {
		if file.Path != "" {
			fetched = append(fetched, file)
		}
	}

	// Fetch order is nondeterministic; cache fingerprints and consensus
	// votes depend on stable prompt content.
	sort.Slice(fetched, func(i, j int) bool { return fetched[i].Path < fetched[j].Path })

	c.logger.Info().Str("repo", owner+"/"+repo).Int("files", len(fetched)).Msg("repository fetched")
	return fetched, nil
}

func (c *Client) defaultBranch(ctx context.Context, owner, repo string) (string, error) {
	var info repoInfoResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/repos/%s/%s", c.baseURL, owner, repo), &info); err != nil {
		return "", fmt.Errorf("resolving default branch: %w", err)
	}
	if info.DefaultBranch == "" {
		return "main", nil
	}
	return info.DefaultBranch, nil
}

func (c *Client) fileContent(ctx context.Context, owner, repo, filePath string) (string, error) {
	var content contentResponse
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.baseURL, owner, repo, filePath)
	if err := c.getJSON(ctx, url, &content); err != nil {
		return "", err
	}

	if content.Type != "file" || content.Encoding != "base64" {
		return "", fmt.Errorf("unexpected content type %q for %s", content.Type, filePath)
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", filePath, err)
	}

	return string(decoded), nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github api %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func wantPath(filePath string) bool {
	for _, segment := range strings.Split(path.Dir(filePath), "/") {
		if skipDirs[strings.ToLower(segment)] {
			return false
		}
	}

	ext := strings.ToLower(path.Ext(filePath))
	if ext == "" {
		// Extensionless files like Makefile or Dockerfile still matter.
		return true
	}
	return codeExtensions[ext]
}
