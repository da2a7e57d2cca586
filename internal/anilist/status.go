package anilist

// Reading-status vocabulary used across the API surface. AniList's
// MediaListStatus enum is translated at this boundary so nothing
// downstream sees the upstream spelling.
const (
	StatusReading    = "reading"
	StatusCompleted  = "completed"
	StatusPlanToRead = "plan_to_read"
	StatusDropped    = "dropped"
	StatusOnHold     = "on_hold"
)

// FromListStatus maps an AniList MediaListStatus to the internal
// vocabulary. REPEATING folds into reading.
func FromListStatus(s string) string {
	switch s {
	case "CURRENT", "REPEATING":
		return StatusReading
	case "COMPLETED":
		return StatusCompleted
	case "PLANNING":
		return StatusPlanToRead
	case "DROPPED":
		return StatusDropped
	case "PAUSED":
		return StatusOnHold
	default:
		return StatusPlanToRead
	}
}

// ToListStatus is the inverse mapping for writes back to AniList.
func ToListStatus(s string) string {
	switch s {
	case StatusReading:
		return "CURRENT"
	case StatusCompleted:
		return "COMPLETED"
	case StatusPlanToRead:
		return "PLANNING"
	case StatusDropped:
		return "DROPPED"
	case StatusOnHold:
		return "PAUSED"
	default:
		return "PLANNING"
	}
}
