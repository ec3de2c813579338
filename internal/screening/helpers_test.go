package screening

import (
	"time"

	"github.com/banking/kyc-risk-service/internal/config"
	"github.com/banking/kyc-risk-service/internal/domain"
)

func testScreeningConfig() *config.ScreeningConfig {
	cfg := config.Default().Screening
	cfg.Workers = 4
	return &cfg
}

func date(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}

// baseRecord has every optional field group present and nothing risky
func baseRecord(id string) domain.CustomerRecord {
	return domain.CustomerRecord{
		ID:           id,
		FullName:     "Mary Johnson",
		Citizenship:  "USA",
		BirthCountry: "USA",
		BirthDate:    date(1985, time.March, 14),
		Occupation:   "salaried",
		Resident:     true,
		Email:        "mary.johnson@example.com",
		SourceIP:     "203.0.113.10",
		IPCountry:    "USA",
		DeviceID:     "device-" + id,
	}
}
