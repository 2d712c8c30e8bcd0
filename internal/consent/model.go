// Package consent manages Account Aggregator consent artefacts: typed
// schema, ACTIVE/REVOKED/PAUSED/EXPIRED lifecycle, and durable-or-fallback
// persistence.
package consent

import (
	"time"
)

// Status is the lifecycle state of a consent artefact.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusRevoked Status = "REVOKED"
	StatusPaused  Status = "PAUSED"
	StatusExpired Status = "EXPIRED"
)

// AllowedFITypes is the closed set of financial-information types a consent
// may cover.
var AllowedFITypes = map[string]bool{
	"DEPOSIT":           true,
	"UPI":               true,
	"GST":               true,
	"UTILITY":           true,
	"SOCIAL":            true,
	"TERM_DEPOSIT":      true,
	"RECURRING_DEPOSIT": true,
	"MUTUAL_FUNDS":      true,
	"SIP":               true,
}

// DataRange bounds the period of data the consent covers. Instants are
// ISO-8601 strings as transmitted on the wire.
type DataRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DataLife states how long fetched data may be retained.
type DataLife struct {
	Unit  string `json:"unit"` // DAY, MONTH, YEAR, INF
	Value int    `json:"value"`
}

// Purpose describes why the data is being fetched, per the AA taxonomy.
type Purpose struct {
	Code     string `json:"code"`
	RefURI   string `json:"refUri"`
	Text     string `json:"text"`
	Category string `json:"category"`
}

// Frequency bounds how often data may be fetched under this consent.
type Frequency struct {
	Unit  string `json:"unit"`
	Value int    `json:"value"`
}

// DefaultPurpose is applied when the caller omits a purpose.
var DefaultPurpose = Purpose{
	Code:     "101",
	RefURI:   "https://api.rebit.org.in/aa/purpose/101.xml",
	Text:     "Wealth management service",
	Category: "Personal Finance",
}

// DefaultFrequency is applied when the caller omits a frequency.
var DefaultFrequency = Frequency{Unit: "MONTH", Value: 1}

// Artefact is a stored consent with its signed wire blob.
type Artefact struct {
	ConsentID       string                 `json:"consent_id"`
	UserReferenceID string                 `json:"user_reference_id"`
	Status          Status                 `json:"status"`
	FITypes         []string               `json:"fi_types"`
	DataRange       DataRange              `json:"data_range"`
	DataLife        DataLife               `json:"data_life"`
	Purpose         Purpose                `json:"purpose"`
	Frequency       Frequency              `json:"frequency"`
	ConsentArtefact map[string]interface{} `json:"consent_artefact"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	RevokedAt       *time.Time             `json:"revoked_at,omitempty"`
}

// CreateRequest is the consent.create input payload.
type CreateRequest struct {
	UserReferenceID string     `json:"user_reference_id"`
	FITypes         []string   `json:"fi_types"`
	DataRange       DataRange  `json:"data_range"`
	DataLife        DataLife   `json:"data_life"`
	Purpose         *Purpose   `json:"purpose,omitempty"`
	Frequency       *Frequency `json:"frequency,omitempty"`
}
