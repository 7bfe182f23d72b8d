package model

import "time"

// Goal is a tracked objective. Progress is a denormalized snapshot of the
// latest GoalProgressEntry; the progress log is the source of truth for
// "when did this last move".
type Goal struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Category        string     `json:"category"`
	TargetDate      *time.Time `json:"target_date,omitempty"`
	Status          string     `json:"status"`
	Progress        float64    `json:"progress"`
	Priority        int        `json:"priority"`
	Importance      int        `json:"importance"`
	ParentGoalID    string     `json:"parent_goal_id,omitempty"`
	RelatedProjects []string   `json:"related_projects,omitempty"`
	DependsOn       []string   `json:"depends_on,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	Notes           []string   `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// GoalProgressEntry is one append-only progress observation. Entries are
// never mutated or deleted.
type GoalProgressEntry struct {
	ID        string    `json:"id"`
	GoalID    string    `json:"goal_id"`
	Progress  float64   `json:"progress"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Notes     string    `json:"notes,omitempty"`
}

// GoalVersion is an append-only snapshot of a goal taken immediately
// before a mutation, so the full field history is reconstructable.
type GoalVersion struct {
	ID           string    `json:"id"`
	GoalID       string    `json:"goal_id"`
	Version      int       `json:"version"`
	Snapshot     Goal      `json:"snapshot"`
	ChangeType   string    `json:"change_type"`
	ChangeReason string    `json:"change_reason,omitempty"`
	ChangedAt    time.Time `json:"changed_at"`
}

// ValidGoalCategories are the allowed goal category values.
var ValidGoalCategories = map[string]bool{
	"shortTerm":  true,
	"mediumTerm": true,
	"longTerm":   true,
}

// Goal status values. planned is initial; the rest are terminal for
// ordinary flow. deleted is soft.
const (
	GoalPlanned   = "planned"
	GoalCompleted = "completed"
	GoalAbandoned = "abandoned"
	GoalDeleted   = "deleted"
)

// ValidGoalStatuses are the allowed goal status values.
var ValidGoalStatuses = map[string]bool{
	GoalPlanned:   true,
	GoalCompleted: true,
	GoalAbandoned: true,
	GoalDeleted:   true,
}
