package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CustomerRecord represents one validated row of a bulk customer intake.
// Records are treated as immutable once constructed.
type CustomerRecord struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`

	// Identity
	Citizenship  string     `json:"citizenship"`
	BirthCountry string     `json:"birth_country"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`

	// Profile
	Occupation string `json:"occupation"` // occupation or account-category code
	Resident   bool   `json:"resident"`

	// Digital footprint
	Email     string `json:"email,omitempty"`
	SourceIP  string `json:"source_ip,omitempty"`
	IPCountry string `json:"ip_country,omitempty"`
	VPN       bool   `json:"vpn,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`

	// Flags
	LocalBlacklist bool `json:"local_blacklist,omitempty"`
	PEP            bool `json:"pep,omitempty"`
}

// UnmarshalJSON accepts birth_date as YYYY-MM-DD or RFC 3339
func (c *CustomerRecord) UnmarshalJSON(data []byte) error {
	type alias CustomerRecord
	aux := struct {
		*alias
		BirthDate string `json:"birth_date,omitempty"`
	}{alias: (*alias)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.BirthDate = nil
	if strings.TrimSpace(aux.BirthDate) != "" {
		t, err := ParseDate(aux.BirthDate)
		if err != nil {
			return err
		}
		c.BirthDate = &t
	}
	return nil
}

// ParseDate parses a calendar date in YYYY-MM-DD or RFC 3339 form
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid birth date %q", s)
	}
	return t, nil
}

// HasEmail returns true if an email address was supplied
func (c *CustomerRecord) HasEmail() bool {
	return strings.TrimSpace(c.Email) != ""
}

// HasDevice returns true if a device identifier was supplied
func (c *CustomerRecord) HasDevice() bool {
	return strings.TrimSpace(c.DeviceID) != ""
}

// HasIPData returns true if either the source IP or its country was supplied
func (c *CustomerRecord) HasIPData() bool {
	return strings.TrimSpace(c.SourceIP) != "" || strings.TrimSpace(c.IPCountry) != ""
}

// HasBirthDate returns true if a birth date was supplied
func (c *CustomerRecord) HasBirthDate() bool {
	return c.BirthDate != nil && !c.BirthDate.IsZero()
}

// EmailDomain returns the lower-cased part after the last '@', or "" if there is none
func (c *CustomerRecord) EmailDomain() string {
	email := strings.ToLower(strings.TrimSpace(c.Email))
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return email[at+1:]
}

// SameDay reports whether two optional dates fall on the same calendar day.
// Both dates must be present.
func SameDay(a, b *time.Time) bool {
	if a == nil || b == nil || a.IsZero() || b.IsZero() {
		return false
	}
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// NormalizeCode upper-cases and trims a country or category code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
