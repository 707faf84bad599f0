package domain

import (
	"encoding/json"
	"time"
)

// Profile is a scraped LinkedIn profile. The full scraper payload is kept
// as raw JSON; only the fields the list views need are lifted into columns.
type Profile struct {
	ID          string          `db:"id"           json:"id"`
	LinkedInURL string          `db:"linkedin_url" json:"linkedin_url"`
	FullName    string          `db:"full_name"    json:"full_name"`
	Headline    string          `db:"headline"     json:"headline"`
	CompanyName string          `db:"company_name" json:"company_name"`
	Payload     json.RawMessage `db:"payload"      json:"payload"`
	CreatedAt   time.Time       `db:"created_at"   json:"created_at"`
}

// ProfileFromPayload lifts the indexed columns out of a raw scraper record.
func ProfileFromPayload(url string, payload json.RawMessage) Profile {
	var fields struct {
		FullName    string `json:"fullName"`
		Headline    string `json:"headline"`
		CompanyName string `json:"companyName"`
	}
	// Payload shape is best-effort; unparseable fields stay empty.
	_ = json.Unmarshal(payload, &fields)

	return Profile{
		LinkedInURL: url,
		FullName:    fields.FullName,
		Headline:    fields.Headline,
		CompanyName: fields.CompanyName,
		Payload:     payload,
	}
}
