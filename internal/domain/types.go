package domain

import "time"

// Workspace is the billing and isolation unit. Every API key, credit
// ledger entry, automation and creative belongs to exactly one workspace.
type Workspace struct {
	ID               string
	Name             string
	Plan             string
	APIKeyHash       string
	APIKey           string `json:"api_key,omitempty"`
	CreditBalance    int64
	RateLimitRPM     int
	AIRateLimitRPM   int
	AuthRateLimitRPM int
	// SealedSecrets is the encrypted integration-credential envelope
	// (Slack webhook URL, Meta access token). Only the crypto package
	// can open it; it is never serialized to API responses.
	SealedSecrets   string `json:"-"`
	MetaAdAccountID string
	Enabled          bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// Schedule describes when an automation should fire. Time is a 24-hour
// "HH:mm" wall-clock string local to Timezone; Days holds lowercase
// weekday names and is only consulted for weekly schedules.
type Schedule struct {
	Frequency Frequency `json:"frequency"`
	Time      string    `json:"time"`
	Timezone  string    `json:"timezone"`
	Days      []string  `json:"days,omitempty"`
}

type AutomationType string

const (
	AutomationReport          AutomationType = "report"
	AutomationCompetitorScan  AutomationType = "competitor_scan"
	AutomationCreativeRefresh AutomationType = "creative_refresh"
)

type Automation struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace_id"`
	Name        string         `json:"name"`
	Type        AutomationType `json:"type"`
	Schedule    *Schedule      `json:"schedule"`
	// LastRunAt is written by the executor after each run, never by the
	// due-schedule evaluator. Once set it only moves forward.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	Enabled   bool       `json:"enabled"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CreativeRequest is the brief the AI providers turn into ad copy.
type CreativeRequest struct {
	Product  string `json:"product"`
	Audience string `json:"audience"`
	Tone     string `json:"tone,omitempty"`
	Platform string `json:"platform,omitempty"`
	Model    string `json:"model,omitempty"`
	Variants int    `json:"variants,omitempty"`
}

type CreativeVariant struct {
	Headline string `json:"headline"`
	Body     string `json:"body"`
	CTA      string `json:"cta"`
}

type CreativeResult struct {
	ID             string            `json:"id"`
	WorkspaceID    string            `json:"workspace_id,omitempty"`
	Variants       []CreativeVariant `json:"variants"`
	Model          string            `json:"model"`
	Provider       string            `json:"provider"`
	CreditsCharged int64             `json:"credits_charged"`
	LatencyMs      int64             `json:"latency_ms"`
	CacheHit       bool              `json:"cache_hit"`
	RequestID      string            `json:"request_id"`
	CreatedAt      time.Time         `json:"created_at"`
}

type CompetitorAd struct {
	ID        string    `json:"id"`
	PageName  string    `json:"page_name"`
	Headline  string    `json:"headline"`
	Body      string    `json:"body"`
	ImageURL  string    `json:"image_url,omitempty"`
	Platform  string    `json:"platform"`
	FirstSeen time.Time `json:"first_seen"`
}

type ReportKind string

const (
	ReportPerformance ReportKind = "performance"
	ReportCompetitor  ReportKind = "competitor"
)

type Report struct {
	ID           string     `json:"id"`
	WorkspaceID  string     `json:"workspace_id"`
	AutomationID string     `json:"automation_id,omitempty"`
	Kind         ReportKind `json:"kind"`
	PeriodStart  time.Time  `json:"period_start"`
	PeriodEnd    time.Time  `json:"period_end"`
	Summary      string     `json:"summary,omitempty"`
	GeneratedAt  time.Time  `json:"generated_at"`
}

// CreditEntry is one row of the workspace credit ledger. Delta is negative
// for spend and positive for top-ups; Balance is the balance after the entry.
type CreditEntry struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Delta       int64     `json:"delta"`
	Balance     int64     `json:"balance"`
	Reason      string    `json:"reason"`
	Ref         string    `json:"ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
