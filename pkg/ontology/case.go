package ontology

import "encoding/json"

// Case is a support ticket tied to a customer account.
type Case struct {
	ID               string          `json:"id"`
	CaseNumber       string          `json:"caseNumber" validate:"required,max=64"`
	AccountID        string          `json:"accountId"`
	AccountName      string          `json:"accountName"`
	Type             string          `json:"type"`
	SubType          string          `json:"subType"`
	Status           string          `json:"status"`
	Priority         string          `json:"priority"`
	SLAStatus        string          `json:"slaStatus"`
	SLADeadline      string          `json:"slaDeadline"`
	SLATimeRemaining string          `json:"slaTimeRemaining"`
	Owner            string          `json:"owner"`
	Team             string          `json:"team"`
	CreatedDate      string          `json:"createdDate"`
	UpdatedDate      string          `json:"updatedDate"`
	Description      string          `json:"description"`
	Resolution       string          `json:"resolution"`
	PendingReason    string          `json:"pendingReason,omitempty"`
	Communications   []Communication `json:"communications"`
	Activities       []Activity      `json:"activities"`
	Attachments      []Attachment    `json:"attachments"`
	RelatedCases     []string        `json:"relatedCases"`
}

// Communication, Activity and Attachment carry the keys the CRM knows as
// typed fields. Any other key, or a known key whose value is not a string,
// is kept verbatim in Extra so the element round-trips unchanged.

type Communication struct {
	ID        string
	Type      string
	Direction string
	From      string
	To        string
	Subject   string
	Body      string
	Timestamp string
	Extra     map[string]json.RawMessage
}

func (c *Communication) fieldRefs() []stringField {
	return []stringField{
		{"id", &c.ID, true},
		{"type", &c.Type, true},
		{"direction", &c.Direction, false},
		{"from", &c.From, false},
		{"to", &c.To, false},
		{"subject", &c.Subject, false},
		{"body", &c.Body, true},
		{"timestamp", &c.Timestamp, true},
	}
}

func (c Communication) MarshalJSON() ([]byte, error) {
	return encodeObject(c.fieldRefs(), c.Extra)
}

func (c *Communication) UnmarshalJSON(data []byte) error {
	*c = Communication{}
	extra, err := decodeObject(data, c.fieldRefs())
	c.Extra = extra
	return err
}

type Activity struct {
	ID          string
	Type        string
	Description string
	User        string
	Timestamp   string
	Extra       map[string]json.RawMessage
}

func (a *Activity) fieldRefs() []stringField {
	return []stringField{
		{"id", &a.ID, true},
		{"type", &a.Type, true},
		{"description", &a.Description, true},
		{"user", &a.User, true},
		{"timestamp", &a.Timestamp, true},
	}
}

func (a Activity) MarshalJSON() ([]byte, error) {
	return encodeObject(a.fieldRefs(), a.Extra)
}

func (a *Activity) UnmarshalJSON(data []byte) error {
	*a = Activity{}
	extra, err := decodeObject(data, a.fieldRefs())
	a.Extra = extra
	return err
}

type Attachment struct {
	ID           string
	Name         string
	Size         string
	Type         string
	UploadedBy   string
	UploadedDate string
	Extra        map[string]json.RawMessage
}

func (a *Attachment) fieldRefs() []stringField {
	return []stringField{
		{"id", &a.ID, true},
		{"name", &a.Name, true},
		{"size", &a.Size, false},
		{"type", &a.Type, false},
		{"uploadedBy", &a.UploadedBy, false},
		{"uploadedDate", &a.UploadedDate, false},
	}
}

func (a Attachment) MarshalJSON() ([]byte, error) {
	return encodeObject(a.fieldRefs(), a.Extra)
}

func (a *Attachment) UnmarshalJSON(data []byte) error {
	*a = Attachment{}
	extra, err := decodeObject(data, a.fieldRefs())
	a.Extra = extra
	return err
}
