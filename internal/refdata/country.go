package refdata

import (
	"golang.org/x/text/language"

	"github.com/banking/kyc-risk-service/internal/domain"
)

// countryAliases maps country names and non-ISO abbreviations found in
// onboarding data to ISO 3166-1 alpha-3 codes.
var countryAliases = map[string]string{
	"IRAN":                     "IRN",
	"ISLAMIC REPUBLIC OF IRAN": "IRN",

	"NORTH KOREA":                           "PRK",
	"KOREA NORTH":                           "PRK",
	"DPRK":                                  "PRK",
	"DEMOCRATIC PEOPLE'S REPUBLIC OF KOREA": "PRK",

	"MYANMAR": "MMR",
	"BURMA":   "MMR",

	"ALGERIA":                      "DZA",
	"ANGOLA":                       "AGO",
	"BOLIVIA":                      "BOL",
	"BULGARIA":                     "BGR",
	"BURKINA FASO":                 "BFA",
	"CAMEROON":                     "CMR",
	"CROATIA":                      "HRV",
	"CRO":                          "HRV",
	"DEMOCRATIC REPUBLIC OF CONGO": "COD",
	"DRC":                          "COD",
	"HAITI":                        "HTI",
	"JAMAICA":                      "JAM",
	"KENYA":                        "KEN",
	"MALI":                         "MLI",
	"MOZAMBIQUE":                   "MOZ",
	"NAMIBIA":                      "NAM",
	"NIGERIA":                      "NGA",
	"PHILIPPINES":                  "PHL",
	"SENEGAL":                      "SEN",
	"SOUTH AFRICA":                 "ZAF",
	"SOUTH SUDAN":                  "SSD",
	"SYRIA":                        "SYR",
	"SYRIAN ARAB REPUBLIC":         "SYR",
	"TURKEY":                       "TUR",
	"TURKIYE":                      "TUR",
	"TÜRKIYE":                      "TUR",
	"UGANDA":                       "UGA",
	"UNITED ARAB EMIRATES":         "ARE",
	"UAE":                          "ARE",
	"VENEZUELA":                    "VEN",
	"VIETNAM":                      "VNM",
	"YEMEN":                        "YEM",
	"ZIMBABWE":                     "ZWE",
	"CÔTE D'IVOIRE":                "CIV",
	"COTE D'IVOIRE":                "CIV",
	"COTE DIVOIRE":                 "CIV",
	"IVORY COAST":                  "CIV",

	"UK":                       "GBR",
	"UNITED KINGDOM":           "GBR",
	"GREAT BRITAIN":            "GBR",
	"UNITED STATES":            "USA",
	"UNITED STATES OF AMERICA": "USA",
}

// CanonicalCountry resolves a country code or name to its ISO 3166-1 alpha-3
// code, so "IR", "IRN" and "Iran" compare equal. Values that cannot be
// resolved are returned trimmed and upper-cased.
func CanonicalCountry(code string) string {
	c := domain.NormalizeCode(code)
	if c == "" {
		return ""
	}
	if iso, ok := countryAliases[c]; ok {
		return iso
	}
	if len(c) == 2 || len(c) == 3 {
		if region, err := language.ParseRegion(c); err == nil && region.IsCountry() {
			if iso := region.ISO3(); iso != "" && iso != "ZZZ" {
				return iso
			}
		}
	}
	return c
}

// SameCountry reports whether two non-empty country values name the same country
func SameCountry(a, b string) bool {
	ca, cb := CanonicalCountry(a), CanonicalCountry(b)
	return ca != "" && ca == cb
}
