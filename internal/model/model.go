// Package model defines the domain types used across the application.
package model

import "time"

// Stage is a named step in the CRM pipeline a listing currently occupies.
type Stage string

// Pipeline stages. The order below is a display convention only; the core
// allows any stage to move to any other stage.
const (
	StagePreliminary      Stage = "preliminary"
	StageToBeCommunicated Stage = "to_be_communicated"
	StageMessageSent      Stage = "message_sent"
	StageCalledByPhone    Stage = "called_by_phone"
	StageInProgress       Stage = "in_progress"
	StageAgreedOnViewing  Stage = "agreed_on_viewing"
	StageWaitingReply     Stage = "waiting_reply"
	StageRejected         Stage = "rejected"
	// StageDeleted is the soft-delete terminal stage; rows are never removed.
	StageDeleted Stage = "deleted"
)

// Stages lists every known stage in pipeline order.
var Stages = []Stage{
	StagePreliminary,
	StageToBeCommunicated,
	StageMessageSent,
	StageCalledByPhone,
	StageInProgress,
	StageAgreedOnViewing,
	StageWaitingReply,
	StageRejected,
	StageDeleted,
}

// ValidStage reports whether s is a known stage value.
func ValidStage(s Stage) bool {
	for _, known := range Stages {
		if s == known {
			return true
		}
	}
	return false
}

// Source identifies how a listing entered the CRM.
type Source string

// Supported listing sources.
const (
	SourceManual    Source = "manual"
	SourceTelegram  Source = "telegram"
	SourceScraper   Source = "scraper"
	SourceURLImport Source = "url_import"
)

// Listing is a persisted CRM record. IdealistaURL is the listing's canonical
// identity when present; manual entries may omit it.
type Listing struct {
	ID           int64     `json:"id"`
	IdealistaURL string    `json:"idealista_url"`
	Title        string    `json:"title"`
	Price        string    `json:"price"`
	PriceValue   float64   `json:"price_value"`
	Rooms        string    `json:"rooms"`
	Size         string    `json:"size"`
	Floor        string    `json:"floor"`
	Description  string    `json:"description"`
	Thumbnail    string    `json:"thumbnail"`
	Stage        Stage     `json:"stage"`
	Notes        string    `json:"notes"`
	Position     int       `json:"position"`
	Priority     int       `json:"priority"`
	Source       Source    `json:"source"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListingPatch is a partial update. Nil fields are left unchanged.
type ListingPatch struct {
	Title        *string  `json:"title"`
	Price        *string  `json:"price"`
	PriceValue   *float64 `json:"price_value"`
	Rooms        *string  `json:"rooms"`
	Size         *string  `json:"size"`
	Floor        *string  `json:"floor"`
	Description  *string  `json:"description"`
	Thumbnail    *string  `json:"thumbnail"`
	IdealistaURL *string  `json:"idealista_url"`
	Notes        *string  `json:"notes"`
	Priority     *int     `json:"priority"`
}

// Empty reports whether the patch changes nothing.
func (p ListingPatch) Empty() bool {
	return p.Title == nil && p.Price == nil && p.PriceValue == nil &&
		p.Rooms == nil && p.Size == nil && p.Floor == nil &&
		p.Description == nil && p.Thumbnail == nil && p.IdealistaURL == nil &&
		p.Notes == nil && p.Priority == nil
}
