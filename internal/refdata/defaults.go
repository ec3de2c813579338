package refdata

// FATF "call for action" jurisdictions, with common name variations and ISO codes
var defaultBlacklist = []string{
	"IRAN", "IRN", "ISLAMIC REPUBLIC OF IRAN", "IR",
	"NORTH KOREA", "DEMOCRATIC PEOPLE'S REPUBLIC OF KOREA", "DPRK", "KOREA NORTH", "PRK", "KP",
	"MYANMAR", "BURMA", "MMR", "MM",
}

// FATF increased-monitoring jurisdictions
var defaultGreyList = []string{
	"ALGERIA", "DZA", "ANGOLA", "AGO", "BOLIVIA", "BOL",
	"BULGARIA", "BGR", "BURKINA FASO", "BFA",
	"CAMEROON", "CMR", "CROATIA", "HRV", "CRO",
	"DEMOCRATIC REPUBLIC OF CONGO", "DRC", "COD",
	"HAITI", "HTI", "JAMAICA", "JAM", "KENYA", "KEN",
	"MALI", "MLI", "MOZAMBIQUE", "MOZ",
	"NAMIBIA", "NAM", "NIGERIA", "NGA", "PHILIPPINES", "PHL", "PH",
	"SENEGAL", "SEN", "SOUTH AFRICA", "ZAF", "ZA",
	"SOUTH SUDAN", "SSD", "SS",
	"SYRIA", "SYR", "SY", "SYRIAN ARAB REPUBLIC",
	"TURKEY", "TUR", "TR", "TÜRKIYE", "TURKIYE",
	"UGANDA", "UGA", "UNITED ARAB EMIRATES", "UAE", "ARE",
	"VENEZUELA", "VEN", "VIETNAM", "VNM", "VN",
	"YEMEN", "YEM", "ZIMBABWE", "ZWE",
	"CÔTE D'IVOIRE", "COTE D'IVOIRE", "COTE DIVOIRE", "IVORY COAST", "CIV",
}

var defaultOccupations = map[string]OccupationRisk{
	"front_company_trader":                 {Weight: 40, Tier: "HIGH"},
	"international_money_service_business": {Weight: 40, Tier: "HIGH"},
	"casino":                               {Weight: 35, Tier: "HIGH"},
	"money_exchange":                       {Weight: 35, Tier: "HIGH"},
	"cash_intensive_business":              {Weight: 30, Tier: "ELEVATED"},
	"cryptocurrency":                       {Weight: 30, Tier: "ELEVATED"},
	"precious_metals":                      {Weight: 25, Tier: "ELEVATED"},
	"real_estate":                          {Weight: 20, Tier: "MODERATE"},
	"art_dealer":                           {Weight: 20, Tier: "MODERATE"},
	"salaried":                             {Weight: 0, Tier: "STANDARD"},
	"student":                              {Weight: 0, Tier: "STANDARD"},
	"retired":                              {Weight: 0, Tier: "STANDARD"},
}

var defaultEmailDomains = []string{
	".ru", ".ir", ".kp", ".sy",
	"tempmail.com", "guerrillamail.com", "10minutemail.com", "throwaway.email",
}

// Defaults returns the built-in reference tables
func Defaults() *Tables {
	jurisdictions, err := NewJurisdictionTable(defaultBlacklist, defaultGreyList)
	if err != nil {
		panic(err)
	}
	occupations, err := NewOccupationRiskTable(defaultOccupations)
	if err != nil {
		panic(err)
	}
	return &Tables{
		Jurisdictions: jurisdictions,
		Occupations:   occupations,
		EmailDomains:  NewEmailDomainSet(defaultEmailDomains),
	}
}
