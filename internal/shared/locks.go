package shared

import "fmt"

// JobLockKey builds the redis key guarding a batch job against overlapping runs.
func JobLockKey(job string) string {
	return fmt.Sprintf("vendai:jobs:%s:lock", job)
}

// EventKey builds the idempotency key for an event-triggered recalculation.
// eventID distinguishes repeated changes of the same source row.
func EventKey(reason, triggerID, eventID string) string {
	if eventID == "" {
		return fmt.Sprintf("%s:%s", reason, triggerID)
	}
	return fmt.Sprintf("%s:%s:%s", reason, triggerID, eventID)
}
