package generate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// GitHubClient implements ContentFetcher and PRCreator against the GitHub
// REST API. A targetRef is "owner/repo".
type GitHubClient struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

type GitHubOption func(*GitHubClient)

func WithGitHubHTTPClient(c *http.Client) GitHubOption {
	return func(g *GitHubClient) {
		g.httpClient = c
	}
}

func WithGitHubBaseURL(url string) GitHubOption {
	return func(g *GitHubClient) {
		g.baseURL = strings.TrimSuffix(url, "/")
	}
}

func NewGitHubClient(token string, opts ...GitHubOption) *GitHubClient {
	g := &GitHubClient{
		token:      token,
		baseURL:    "https://api.github.com",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GitHubClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	g.setHeaders(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("github API error: %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (g *GitHubClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
}

// FetchRepo gathers the metadata, README, and recent commit history the
// prompt templates need.
func (g *GitHubClient) FetchRepo(ctx context.Context, targetRef string) (*RepoContent, error) {
	owner, name, ok := strings.Cut(targetRef, "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("invalid repository reference %q", targetRef)
	}

	var repo struct {
		Description string `json:"description"`
	}
	if err := g.get(ctx, "/repos/"+owner+"/"+name, &repo); err != nil {
		return nil, err
	}

	content := &RepoContent{
		Owner:       owner,
		Name:        name,
		Description: repo.Description,
	}

	var readme struct {
		Content string `json:"content"`
	}
	if err := g.get(ctx, "/repos/"+owner+"/"+name+"/readme", &readme); err == nil {
		if decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(readme.Content, "\n", "")); err == nil {
			content.Readme = string(decoded)
		}
	}

	var commits []struct {
		SHA    string `json:"sha"`
		Commit struct {
			Message string `json:"message"`
			Author  struct {
				Date time.Time `json:"date"`
			} `json:"author"`
		} `json:"commit"`
	}
	if err := g.get(ctx, "/repos/"+owner+"/"+name+"/commits?per_page=50", &commits); err == nil {
		for _, c := range commits {
			content.Commits = append(content.Commits, Commit{
				SHA:     c.SHA,
				Message: c.Commit.Message,
				Date:    c.Commit.Author.Date,
			})
		}
	}

	return content, nil
}

// CreatePullRequest runs the linear branch/commit/PR workflow: resolve the
// default branch head, create a branch, write the file, open the PR.
func (g *GitHubClient) CreatePullRequest(ctx context.Context, in PullRequestInput) (string, error) {
	owner, name, ok := strings.Cut(in.TargetRef, "/")
	if !ok {
		return "", fmt.Errorf("invalid repository reference %q", in.TargetRef)
	}
	base := "/repos/" + owner + "/" + name

	var repo struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := g.get(ctx, base, &repo); err != nil {
		return "", err
	}

	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	if err := g.get(ctx, base+"/git/ref/heads/"+repo.DefaultBranch, &ref); err != nil {
		return "", err
	}

	if err := g.post(ctx, base+"/git/refs", map[string]string{
		"ref": "refs/heads/" + in.Branch,
		"sha": ref.Object.SHA,
	}, nil); err != nil {
		return "", fmt.Errorf("create branch: %w", err)
	}

	if err := g.put(ctx, base+"/contents/"+in.Path, map[string]string{
		"message": in.Title,
		"content": base64.StdEncoding.EncodeToString([]byte(in.Content)),
		"branch":  in.Branch,
	}); err != nil {
		return "", fmt.Errorf("commit file: %w", err)
	}

	var pr struct {
		HTMLURL string `json:"html_url"`
	}
	if err := g.post(ctx, base+"/pulls", map[string]string{
		"title": in.Title,
		"body":  in.Body,
		"head":  in.Branch,
		"base":  repo.DefaultBranch,
	}, &pr); err != nil {
		return "", fmt.Errorf("open pull request: %w", err)
	}
	return pr.HTMLURL, nil
}

func (g *GitHubClient) post(ctx context.Context, path string, payload any, out any) error {
	return g.send(ctx, http.MethodPost, path, payload, out)
}

func (g *GitHubClient) put(ctx context.Context, path string, payload any) error {
	return g.send(ctx, http.MethodPut, path, payload, nil)
}

func (g *GitHubClient) send(ctx context.Context, method, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	g.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("github API error: %s: status %d", path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
