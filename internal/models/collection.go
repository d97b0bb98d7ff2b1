package models

import (
	"time"

	"github.com/google/uuid"
)

// CollectionType distinguishes manually curated collections from smart
// collections whose membership is rule-driven.
type CollectionType string

const (
	CollectionStandard CollectionType = "standard"
	CollectionSmart    CollectionType = "smart"
)

// Collection groups papers, optionally nested under a parent collection.
type Collection struct {
	ID           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	Type         CollectionType `json:"type"`
	Color        string         `json:"color"`
	Icon         string         `json:"icon"`
	ParentID     *uuid.UUID     `json:"parent_id,omitempty"`
	PaperIDs     []uuid.UUID    `json:"paper_ids,omitempty"`
	SmartRules   []byte         `json:"smart_rules,omitempty"`
	Notes        string         `json:"notes"`
	SortOrder    int            `json:"sort_order"`
	CreatedDate  time.Time      `json:"created_date"`
	ModifiedDate time.Time      `json:"modified_date"`
}

// Touch bumps ModifiedDate. Call after any local mutation.
func (c *Collection) Touch() {
	c.ModifiedDate = time.Now().UTC()
}
