package screening

import (
	"strings"

	"github.com/banking/kyc-risk-service/internal/domain"
)

// DeviceLedger counts device identifier occurrences within one batch.
// It is built once before scoring and only read afterwards.
type DeviceLedger struct {
	counts map[string]int
}

// BuildDeviceLedger makes a single pass over the batch, ignoring empty device ids
func BuildDeviceLedger(records []domain.CustomerRecord) *DeviceLedger {
	l := &DeviceLedger{counts: make(map[string]int)}
	for i := range records {
		if id := strings.TrimSpace(records[i].DeviceID); id != "" {
			l.counts[id]++
		}
	}
	return l
}

// CountFor returns how many records in the batch share the device id
func (l *DeviceLedger) CountFor(deviceID string) int {
	if l == nil {
		return 0
	}
	id := strings.TrimSpace(deviceID)
	if id == "" {
		return 0
	}
	return l.counts[id]
}

// Distinct returns the number of distinct device ids seen
func (l *DeviceLedger) Distinct() int {
	if l == nil {
		return 0
	}
	return len(l.counts)
}

// Shared returns the number of device ids used by more than one record
func (l *DeviceLedger) Shared() int {
	if l == nil {
		return 0
	}
	n := 0
	for _, c := range l.counts {
		if c > 1 {
			n++
		}
	}
	return n
}
