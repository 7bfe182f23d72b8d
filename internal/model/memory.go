// Package model defines the data types shared by the three thread-scoped stores.
package model

import "time"

// Memory is one version of a fact about the user. Content changes never
// mutate a row; they close it and insert a successor, so every version a
// key ever had remains queryable by time.
type Memory struct {
	ID              string          `json:"id"`
	OwnerType       string          `json:"owner_type"`
	OwnerID         string          `json:"owner_id,omitempty"`
	MemoryType      string          `json:"memory_type"`
	Key             string          `json:"key,omitempty"`
	Content         string          `json:"content"`
	Confidence      float64         `json:"confidence"`
	Status          string          `json:"status"`
	ValidFrom       time.Time       `json:"valid_from"`
	ValidTo         *time.Time      `json:"valid_to,omitempty"`
	Version         int             `json:"version"`
	History         []MemoryVersion `json:"history,omitempty"`
	SourceMessageID string          `json:"source_message_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// MemoryVersion is one element of a memory's embedded history array.
// The last element describes the current version and has a nil ValidTo.
type MemoryVersion struct {
	Version      int        `json:"version"`
	Content      string     `json:"content"`
	Confidence   float64    `json:"confidence"`
	ValidFrom    time.Time  `json:"valid_from"`
	ValidTo      *time.Time `json:"valid_to,omitempty"`
	ChangeReason string     `json:"change_reason,omitempty"`
}

// ValidMemoryTypes are the allowed memory type values.
var ValidMemoryTypes = map[string]bool{
	"profile":    true,
	"fact":       true,
	"preference": true,
	"constraint": true,
	"style":      true,
	"context":    true,
}

// Memory status values. Deletion is soft: the row keeps its place in the
// version chain for audit.
const (
	MemoryActive     = "active"
	MemoryDeprecated = "deprecated"
	MemoryDeleted    = "deleted"
)

// ValidMemoryStatuses are the allowed memory status values.
var ValidMemoryStatuses = map[string]bool{
	MemoryActive:     true,
	MemoryDeprecated: true,
	MemoryDeleted:    true,
}
