package schema

// GreenCertificate is the typed health certificate payload. Fields not
// listed here are ignored when decoding.
type GreenCertificate struct {
	SchemaVersion string        `json:"ver"`
	Subject       Person        `json:"nam"`
	DateOfBirth   string        `json:"dob"`
	Vaccinations  []Vaccination `json:"v,omitempty"`
	Tests         []Test        `json:"t,omitempty"`
	Recoveries    []Recovery    `json:"r,omitempty"`
}

type Person struct {
	FamilyName               string `json:"fn,omitempty"`
	FamilyNameTransliterated string `json:"fnt"`
	GivenName                string `json:"gn,omitempty"`
	GivenNameTransliterated  string `json:"gnt,omitempty"`
}

type Vaccination struct {
	Target                string `json:"tg"`
	Vaccine               string `json:"vp"`
	MedicinalProduct      string `json:"mp"`
	AuthorizationHolder   string `json:"ma"`
	DoseNumber            int    `json:"dn"`
	DoseTotalNumber       int    `json:"sd"`
	Date                  string `json:"dt"`
	Country               string `json:"co"`
	CertificateIssuer     string `json:"is"`
	CertificateIdentifier string `json:"ci"`
}

type Test struct {
	Target                string `json:"tg"`
	Type                  string `json:"tt"`
	NameNaa               string `json:"nm,omitempty"`
	NameRat               string `json:"ma,omitempty"`
	DateTimeSample        string `json:"sc"`
	ResultPositive        string `json:"tr"`
	TestFacility          string `json:"tc,omitempty"`
	Country               string `json:"co"`
	CertificateIssuer     string `json:"is"`
	CertificateIdentifier string `json:"ci"`
}

type Recovery struct {
	Target                string `json:"tg"`
	DateOfFirstPositive   string `json:"fr"`
	Country               string `json:"co"`
	CertificateIssuer     string `json:"is"`
	CertificateValidFrom  string `json:"df"`
	CertificateValidUntil string `json:"du"`
	CertificateIdentifier string `json:"ci"`
}
