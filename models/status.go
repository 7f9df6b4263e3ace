// ABOUTME: Mapping between allocation status and task-board percent complete
// ABOUTME: Outbound writes status to percent, inbound writes percent to status
package models

// PercentForStatus maps an allocation status onto the three percent values
// the task board understands.
func PercentForStatus(status string) int {
	switch status {
	case AllocationCompleted:
		return 100
	case AllocationInProgress:
		return 50
	default:
		return 0
	}
}

// StatusForPercent maps a task's percent complete back to an allocation status.
// Cancelled has no task-board representation and is never produced here.
func StatusForPercent(percent int) string {
	switch {
	case percent >= 100:
		return AllocationCompleted
	case percent > 0:
		return AllocationInProgress
	default:
		return AllocationOpen
	}
}
