package screening

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/banking/kyc-risk-service/internal/domain"
)

func recordsWithDevices(ids ...string) []domain.CustomerRecord {
	records := make([]domain.CustomerRecord, len(ids))
	for i, id := range ids {
		records[i] = domain.CustomerRecord{ID: string(rune('A' + i)), DeviceID: id}
	}
	return records
}

func TestDeviceLedger(t *testing.T) {
	ledger := BuildDeviceLedger(recordsWithDevices("d1", "d1", " d1 ", "d2", "d2", "d3", "", "  "))

	assert.Equal(t, 3, ledger.CountFor("d1"))
	assert.Equal(t, 2, ledger.CountFor("d2"))
	assert.Equal(t, 1, ledger.CountFor("d3"))
	assert.Equal(t, 0, ledger.CountFor("unseen"))
	assert.Equal(t, 0, ledger.CountFor(""))
	assert.Equal(t, 3, ledger.Distinct())
	assert.Equal(t, 2, ledger.Shared())

	var nilLedger *DeviceLedger
	assert.Equal(t, 0, nilLedger.CountFor("d1"))
}

func TestDeviceLedgerOrderInvariance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("counts do not depend on record order", prop.ForAll(
		func(picks []int, shift int) bool {
			if len(picks) == 0 {
				return true
			}
			pool := []string{"d1", "d2", "d3", "d4", ""}
			ids := make([]string, len(picks))
			for i, p := range picks {
				ids[i] = pool[p]
			}
			rotated := make([]string, len(ids))
			for i := range ids {
				rotated[(i+shift)%len(ids)] = ids[i]
			}
			reversed := make([]string, len(ids))
			for i := range ids {
				reversed[len(ids)-1-i] = ids[i]
			}

			a := BuildDeviceLedger(recordsWithDevices(ids...))
			b := BuildDeviceLedger(recordsWithDevices(rotated...))
			c := BuildDeviceLedger(recordsWithDevices(reversed...))
			for _, id := range ids {
				if a.CountFor(id) != b.CountFor(id) || a.CountFor(id) != c.CountFor(id) {
					return false
				}
			}
			return a.Distinct() == b.Distinct() && a.Distinct() == c.Distinct()
		},
		gen.SliceOf(gen.IntRange(0, 4)),
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}
