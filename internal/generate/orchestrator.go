// Package generate coordinates one generation request: entitlement check,
// content fetch, LLM call, then usage recording. Quota is consumed only
// after the generation has succeeded.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gitscribe/gitscribe/internal/entitlement"
	"github.com/gitscribe/gitscribe/internal/model"
	"github.com/gitscribe/gitscribe/internal/plan"
	"github.com/gitscribe/gitscribe/internal/usage"
)

// ContentFetcher retrieves repository content from the code host.
type ContentFetcher interface {
	FetchRepo(ctx context.Context, targetRef string) (*RepoContent, error)
}

// TextGenerator turns repository content into a documentation artifact.
type TextGenerator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// PRCreator runs the bounded branch/commit/pull-request workflow against
// the code host. No state is retained between calls.
type PRCreator interface {
	CreatePullRequest(ctx context.Context, in PullRequestInput) (string, error)
}

type RepoContent struct {
	Owner       string
	Name        string
	Description string
	Readme      string
	Files       []File
	Commits     []Commit
}

type File struct {
	Path    string
	Content string
}

type Commit struct {
	SHA     string
	Message string
	Date    time.Time
}

type Request struct {
	DocType model.DocType
	Content *RepoContent
}

type PullRequestInput struct {
	TargetRef string
	Branch    string
	Path      string
	Title     string
	Body      string
	Content   string
}

// Result carries the artifact plus updated usage figures and the ledger
// event ID, which action-tracking calls reference directly.
type Result struct {
	Artifact string  `json:"artifact"`
	EventID  int64   `json:"event_id"`
	Usage    int     `json:"usage"`
	Limit    int     `json:"limit"`
	Plan     plan.ID `json:"plan"`
}

// DeniedError is the structured entitlement denial. It carries the usage
// and limit so callers can render an upgrade prompt.
type DeniedError struct {
	Decision entitlement.Decision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("generation limit reached (%d/%d on plan %s)", e.Decision.Usage, e.Decision.Limit, e.Decision.Plan)
}

type Orchestrator struct {
	evaluator *entitlement.Evaluator
	recorder  *usage.Recorder
	fetcher   ContentFetcher
	generator TextGenerator
	prs       PRCreator
	logger    *slog.Logger
	now       func() time.Time
}

func NewOrchestrator(
	evaluator *entitlement.Evaluator,
	recorder *usage.Recorder,
	fetcher ContentFetcher,
	generator TextGenerator,
	prs PRCreator,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		evaluator: evaluator,
		recorder:  recorder,
		fetcher:   fetcher,
		generator: generator,
		prs:       prs,
		logger:    logger,
		now:       time.Now,
	}
}

// Generate runs one generation end to end. On denial it performs no
// external calls and no ledger write. On collaborator failure it returns
// the error without recording, so a failed generation never consumes
// quota.
func (o *Orchestrator) Generate(ctx context.Context, accountID int64, ch model.Channel, docType model.DocType, targetRef string) (*Result, error) {
	if !docType.Valid() {
		return nil, fmt.Errorf("unknown doc type %q", docType)
	}

	dec, err := o.evaluator.Evaluate(accountID, ch)
	if err != nil {
		return nil, err
	}
	if !dec.Allowed {
		return nil, &DeniedError{Decision: dec}
	}

	start := o.now()
	content, err := o.fetcher.FetchRepo(ctx, targetRef)
	if err != nil {
		return nil, fmt.Errorf("fetch repository: %w", err)
	}

	artifact, err := o.generator.Generate(ctx, Request{DocType: docType, Content: content})
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", docType, err)
	}

	durationMs := o.now().Sub(start).Milliseconds()
	ev, err := o.recorder.RecordGeneration(accountID, docType, targetRef, ch, &durationMs)
	if err != nil {
		return nil, fmt.Errorf("record generation: %w", err)
	}

	o.logger.Info("generation completed",
		"account_id", accountID, "doc_type", docType, "channel", ch,
		"target", targetRef, "duration_ms", durationMs)

	return &Result{
		Artifact: artifact,
		EventID:  ev.ID,
		Usage:    dec.Usage + 1,
		Limit:    dec.Limit,
		Plan:     dec.Plan,
	}, nil
}

// OpenPullRequest pushes a previously generated artifact to the target
// repository as a pull request and marks the ledger event. The tracking
// write is best-effort; a PR that opened successfully is reported even if
// the flag update fails.
func (o *Orchestrator) OpenPullRequest(ctx context.Context, accountID, eventID int64, docType model.DocType, targetRef, artifact string) (string, error) {
	in := PullRequestInput{
		TargetRef: targetRef,
		Branch:    fmt.Sprintf("gitscribe/%s", docType),
		Path:      pathForDocType(docType),
		Title:     fmt.Sprintf("docs: add generated %s", docType),
		Body:      "Generated by gitscribe.",
		Content:   artifact,
	}
	url, err := o.prs.CreatePullRequest(ctx, in)
	if err != nil {
		return "", fmt.Errorf("create pull request: %w", err)
	}

	if _, err := o.recorder.TrackAction(accountID, eventID, targetRef, docType, model.ActionPRCreated); err != nil {
		o.logger.Warn("track pr_created", "account_id", accountID, "event_id", eventID, "error", err)
	}
	return url, nil
}

func pathForDocType(d model.DocType) string {
	switch d {
	case model.DocReadme:
		return "README.md"
	case model.DocChangelog:
		return "CHANGELOG.md"
	case model.DocContributing:
		return "CONTRIBUTING.md"
	case model.DocLicense:
		return "LICENSE"
	case model.DocCodeOfConduct:
		return "CODE_OF_CONDUCT.md"
	case model.DocDiagram:
		return "docs/diagram.md"
	default:
		return "docs/generated.md"
	}
}
