package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gitscribe/gitscribe/internal/model"
)

// LLMClient implements TextGenerator against an OpenAI-compatible chat
// completions endpoint.
type LLMClient struct {
	apiKey     string
	baseURL    string
	llmModel   string
	httpClient *http.Client
}

type LLMOption func(*LLMClient)

func WithLLMHTTPClient(c *http.Client) LLMOption {
	return func(l *LLMClient) {
		l.httpClient = c
	}
}

func WithLLMBaseURL(url string) LLMOption {
	return func(l *LLMClient) {
		l.baseURL = strings.TrimSuffix(url, "/")
	}
}

func NewLLMClient(apiKey, llmModel string, opts ...LLMOption) *LLMClient {
	l := &LLMClient{
		apiKey:     apiKey,
		baseURL:    "https://api.openai.com/v1",
		llmModel:   llmModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (l *LLMClient) Generate(ctx context.Context, req Request) (string, error) {
	payload := chatRequest{
		Model: l.llmModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(req.DocType)},
			{Role: "user", Content: userPrompt(req.Content)},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("llm API error: status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

func systemPrompt(d model.DocType) string {
	switch d {
	case model.DocReadme:
		return "You write clear, complete README files in GitHub-flavored markdown."
	case model.DocChangelog:
		return "You write changelogs in Keep a Changelog format from commit history."
	case model.DocContributing:
		return "You write CONTRIBUTING guides tailored to the repository's tooling."
	case model.DocLicense:
		return "You select and emit an appropriate open-source license text."
	case model.DocCodeOfConduct:
		return "You emit a Contributor Covenant code of conduct adapted to the project."
	case model.DocComments:
		return "You add concise inline documentation comments to source code."
	case model.DocDiagram:
		return "You produce Mermaid class diagrams from source structure."
	default:
		return "You write software documentation."
	}
}

func userPrompt(c *RepoContent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s/%s\n", c.Owner, c.Name)
	if c.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", c.Description)
	}
	if c.Readme != "" {
		fmt.Fprintf(&b, "\nExisting README:\n%s\n", c.Readme)
	}
	for _, f := range c.Files {
		fmt.Fprintf(&b, "\nFile %s:\n%s\n", f.Path, f.Content)
	}
	if len(c.Commits) > 0 {
		b.WriteString("\nRecent commits:\n")
		for _, commit := range c.Commits {
			fmt.Fprintf(&b, "- %s %s\n", commit.SHA[:min(7, len(commit.SHA))], firstLine(commit.Message))
		}
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
