package refdata

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banking/kyc-risk-service/internal/domain"
)

// File is the on-disk shape of a reference data override
type File struct {
	Jurisdictions struct {
		Blacklist []string `yaml:"blacklist"`
		GreyList  []string `yaml:"grey_list"`
	} `yaml:"jurisdictions"`
	Occupations  map[string]OccupationRisk `yaml:"occupations"`
	EmailDomains []string                  `yaml:"email_domains"`
}

// LoadFile reads reference tables from a YAML file
func LoadFile(path string) (*Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reference data: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads reference tables from YAML
func Parse(r io.Reader) (*Tables, error) {
	var file File
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode reference data: %w", err)
	}

	jurisdictions, err := NewJurisdictionTable(file.Jurisdictions.Blacklist, file.Jurisdictions.GreyList)
	if err != nil {
		return nil, err
	}
	occupations, err := NewOccupationRiskTable(file.Occupations)
	if err != nil {
		return nil, err
	}
	return &Tables{
		Jurisdictions: jurisdictions,
		Occupations:   occupations,
		EmailDomains:  NewEmailDomainSet(file.EmailDomains),
	}, nil
}

type sanctionsRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"`
	Country   string `json:"country"`
	ListID    string `json:"list_id"`
}

// LoadSanctionsFile reads a JSON array of sanctions entries
func LoadSanctionsFile(path string) ([]domain.SanctionsEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sanctions list: %w", err)
	}
	defer f.Close()
	return ParseSanctions(f)
}

// ParseSanctions decodes sanctions entries. Birth dates accept YYYY-MM-DD or RFC 3339.
func ParseSanctions(r io.Reader) ([]domain.SanctionsEntry, error) {
	var records []sanctionsRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode sanctions list: %w", err)
	}

	entries := make([]domain.SanctionsEntry, 0, len(records))
	for i, rec := range records {
		entry := domain.SanctionsEntry{
			ID:      strings.TrimSpace(rec.ID),
			Name:    rec.Name,
			Country: CanonicalCountry(rec.Country),
			ListID:  strings.TrimSpace(rec.ListID),
		}
		if rec.BirthDate != "" {
			t, err := domain.ParseDate(rec.BirthDate)
			if err != nil {
				return nil, fmt.Errorf("sanctions entry %d (%s): %w", i, rec.ID, err)
			}
			entry.BirthDate = &t
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
