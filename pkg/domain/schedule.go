package domain

// ScheduleStatus is the per-item state machine of the wait queue.
// The enum is a contract other code and tests depend on, independent of the
// physical storage format.
type ScheduleStatus string

const (
	SchedulePending   ScheduleStatus = "pending"
	ScheduleDue       ScheduleStatus = "due"
	ScheduleExecuted  ScheduleStatus = "executed"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// ScheduledExecution is a persisted continuation created by a WAIT block.
// Items are keyed (DocumentID, BlockID, FireAtEpoch) so a process restart
// neither loses nor duplicates a wakeup.
type ScheduledExecution struct {
	ID          string         `json:"id"`
	DocumentID  string         `json:"document_id"`
	BlockID     string         `json:"block_id"`
	FireAtEpoch int64          `json:"fire_at_epoch"`
	Snapshot    []byte         `json:"snapshot"`
	Status      ScheduleStatus `json:"status"`
}

// Key returns the durable dedupe key.
func (s ScheduledExecution) Key() string {
	return scheduleKey(s.DocumentID, s.BlockID, s.FireAtEpoch)
}

// ScheduleKey builds the durable dedupe key for an item.
func ScheduleKey(documentID, blockID string, fireAtEpoch int64) string {
	return scheduleKey(documentID, blockID, fireAtEpoch)
}

func scheduleKey(documentID, blockID string, fireAtEpoch int64) string {
	// Fixed-width epoch keeps lexical and chronological order aligned.
	return documentID + "|" + blockID + "|" + itoa20(fireAtEpoch)
}

func itoa20(n int64) string {
	buf := [20]byte{'0', '0', '0', '0', '0', '0', '0', '0', '0', '0', '0', '0', '0', '0', '0', '0', '0', '0', '0', '0'}
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	s := string(buf[:])
	if neg {
		s = "-" + s
	}
	return s
}
