package types

// Status is the lifecycle status of a persisted row. Archived tenants and
// memberships stay readable but may no longer act.
type Status string

const (
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)
