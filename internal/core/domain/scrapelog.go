package domain

import "time"

// ScrapeStatus is the lifecycle state of one scraping request.
type ScrapeStatus string

const (
	ScrapeRunning   ScrapeStatus = "running"
	ScrapeCompleted ScrapeStatus = "completed"
	ScrapePartial   ScrapeStatus = "partial"
	ScrapeFailed    ScrapeStatus = "failed"
)

// ScrapeType distinguishes the scraping pipelines.
type ScrapeType string

const (
	ScrapeProfiles     ScrapeType = "profile-details"
	ScrapePostComments ScrapeType = "post-comments"
	ScrapeMixed        ScrapeType = "mixed"
)

// ScrapeLog is the audit row for one scraping request.
type ScrapeLog struct {
	ID          string       `db:"id"           json:"id"`
	UserID      string       `db:"user_id"      json:"user_id"`
	Type        ScrapeType   `db:"scrape_type"  json:"scrape_type"`
	InputURLs   []string     `db:"-"            json:"input_urls"`
	Status      ScrapeStatus `db:"status"       json:"status"`
	Scraped     int          `db:"scraped"      json:"scraped"`
	Failed      int          `db:"failed"       json:"failed"`
	Error       string       `db:"error_msg"    json:"error_msg,omitempty"`
	StartedAt   time.Time    `db:"started_at"   json:"started_at"`
	CompletedAt *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
}

// User is the minimal account record the API surface needs: a stable ID
// resolved from a webhook token.
type User struct {
	ID           string `db:"id"            json:"id"`
	WebhookToken string `db:"webhook_token" json:"-"`
}
