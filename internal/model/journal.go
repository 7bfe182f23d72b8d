package model

import "time"

// JournalEntry is a timestamped activity record or a rollup summary that
// aggregates a time window of finer-grained entries.
type JournalEntry struct {
	ID          string            `json:"id"`
	Content     string            `json:"content"`
	EntryType   string            `json:"entry_type"`
	Timestamp   time.Time         `json:"timestamp"`
	PeriodStart *time.Time        `json:"period_start,omitempty"`
	PeriodEnd   *time.Time        `json:"period_end,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ParentID    string            `json:"parent_id,omitempty"`
	RollupLevel int               `json:"rollup_level"`
	Status      string            `json:"status"`
}

// Journal entry types, finest tier first.
const (
	EntryRaw           = "raw"
	EntryHourlyRollup  = "hourlyRollup"
	EntryWeeklyRollup  = "weeklyRollup"
	EntryMonthlyRollup = "monthlyRollup"
	EntryYearlyRollup  = "yearlyRollup"
)

// RollupLevels maps an entry type to its tier. The level is a strict
// function of the type; callers never choose it independently.
var RollupLevels = map[string]int{
	EntryRaw:           0,
	EntryHourlyRollup:  1,
	EntryWeeklyRollup:  2,
	EntryMonthlyRollup: 3,
	EntryYearlyRollup:  4,
}

// Journal entry status values.
const (
	EntryActive   = "active"
	EntryArchived = "archived"
)
