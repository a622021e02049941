package twilio

// Country is a country entry from the AvailablePhoneNumbers resource. The list
// endpoint and the per-country endpoint share this shape.
type Country struct {
	CountryCode     string            `json:"country_code"`
	Country         string            `json:"country"`
	Beta            bool              `json:"beta"`
	URI             string            `json:"uri"`
	SubresourceURIs map[string]string `json:"subresource_uris"`
}

type countriesPage struct {
	Countries   []Country `json:"countries"`
	URI         string    `json:"uri"`
	NextPageURI string    `json:"next_page_uri"`
}

// Regulation is one entry of the RegulatoryCompliance Regulations resource.
type Regulation struct {
	SID          string         `json:"sid"`
	FriendlyName string         `json:"friendly_name"`
	IsoCountry   string         `json:"iso_country"`
	NumberType   string         `json:"number_type"`
	EndUserType  string         `json:"end_user_type"`
	Requirements map[string]any `json:"requirements"`
	URL          string         `json:"url"`
}

type regulationsPage struct {
	Results []Regulation `json:"results"`
	Meta    pageMeta     `json:"meta"`
}

type pageMeta struct {
	Page        int    `json:"page"`
	PageSize    int    `json:"page_size"`
	URL         string `json:"url"`
	NextPageURL string `json:"next_page_url"`
}

// RegulationSet is every business regulation published for one country.
type RegulationSet struct {
	CountryCode string
	Regulations []Regulation
}

type errorBody struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}
