package model

import "time"

// Channel is the access path a generation request arrived on.
type Channel string

const (
	ChannelWeb Channel = "web"
	ChannelAPI Channel = "api"
)

func (c Channel) Valid() bool {
	return c == ChannelWeb || c == ChannelAPI
}

// DocType identifies the kind of documentation artifact being generated.
type DocType string

const (
	DocReadme        DocType = "readme"
	DocChangelog     DocType = "changelog"
	DocContributing  DocType = "contributing"
	DocLicense       DocType = "license"
	DocCodeOfConduct DocType = "code_of_conduct"
	DocComments      DocType = "comments"
	DocDiagram       DocType = "diagram"
)

func (d DocType) Valid() bool {
	switch d {
	case DocReadme, DocChangelog, DocContributing, DocLicense,
		DocCodeOfConduct, DocComments, DocDiagram:
		return true
	}
	return false
}

// Action is a post-generation outcome recorded against a ledger event.
type Action string

const (
	ActionCopied     Action = "copied"
	ActionDownloaded Action = "downloaded"
	ActionPRCreated  Action = "pr_created"
)

func (a Action) Valid() bool {
	return a == ActionCopied || a == ActionDownloaded || a == ActionPRCreated
}

type Account struct {
	ID                   int64      `json:"id"`
	GitHubID             int64      `json:"github_id"`
	Username             string     `json:"username"`
	Email                *string    `json:"email"`
	Name                 *string    `json:"name"`
	AvatarURL            *string    `json:"avatar_url"`
	Plan                 string     `json:"plan"`
	IsPro                bool       `json:"is_pro"`
	IsAdmin              bool       `json:"is_admin"`
	SurveyCompleted      bool       `json:"survey_completed"`
	APICallsUsed         int        `json:"api_calls_used"`
	APICallsLimit        int        `json:"api_calls_limit"`
	APICallsResetAt      time.Time  `json:"api_calls_reset_at"`
	StripeCustomerID     *string    `json:"stripe_customer_id"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id"`
	UpgradedAt           *time.Time `json:"upgraded_at"`
	CanceledAt           *time.Time `json:"canceled_at"`
	DisabledAt           *time.Time `json:"disabled_at"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// GenerationEvent is one ledger entry. Rows are immutable after insert
// except for the three outcome flags, each of which may flip false->true
// exactly once.
type GenerationEvent struct {
	ID         int64     `json:"id"`
	AccountID  int64     `json:"account_id"`
	DocType    DocType   `json:"doc_type"`
	Channel    Channel   `json:"channel"`
	TargetRef  string    `json:"target_ref"`
	DurationMs *int64    `json:"duration_ms"`
	Copied     bool      `json:"copied"`
	Downloaded bool      `json:"downloaded"`
	PRCreated  bool      `json:"pr_created"`
	CreatedAt  time.Time `json:"created_at"`
}

// APIKey holds only the digest of the issued secret. The raw secret is
// returned once at creation time and is not recoverable afterwards.
type APIKey struct {
	ID         int64      `json:"id"`
	AccountID  int64      `json:"account_id"`
	Label      string     `json:"label"`
	Digest     string     `json:"-"`
	LastUsedAt *time.Time `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

type Session struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	AccountID int64     `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type SurveyResponse struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	Referral  string    `json:"referral"`
	UseCase   string    `json:"use_case"`
	Comments  string    `json:"comments"`
	CreatedAt time.Time `json:"created_at"`
}
