package ontology

// Org, Account, Contact and Opportunity are browse-only fixtures; they are never persisted.

type Org struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	ABN     string `json:"abn"`
	Segment string `json:"segment"`
}

type Account struct {
	ID            string  `json:"id"`
	OrgID         string  `json:"orgId"`
	Name          string  `json:"name"`
	AccountNumber string  `json:"accountNumber"`
	NMI           string  `json:"nmi"`
	Status        string  `json:"status"`
	Type          string  `json:"type"`
	Address       string  `json:"address"`
	Balance       float64 `json:"balance"`
}

type Contact struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
	Primary   bool   `json:"primary"`
}

type Opportunity struct {
	ID          string  `json:"id"`
	AccountID   string  `json:"accountId"`
	Name        string  `json:"name"`
	Stage       string  `json:"stage"`
	Value       float64 `json:"value"`
	Probability int     `json:"probability"`
	Owner       string  `json:"owner"`
	CloseDate   string  `json:"closeDate"`
}

type MoveOpportunityRequest struct {
	Stage string `json:"stage"`
}

// PipelineStage is one column of the sales pipeline board.
type PipelineStage struct {
	Stage         string        `json:"stage"`
	Count         int           `json:"count"`
	TotalValue    float64       `json:"totalValue"`
	Opportunities []Opportunity `json:"opportunities"`
}

// Pipeline stages in board order
var PipelineStages = []string{
	"Prospecting",
	"Qualification",
	"Proposal",
	"Negotiation",
	"Closed Won",
	"Closed Lost",
}

func IsPipelineStage(stage string) bool {
	for _, s := range PipelineStages {
		if s == stage {
			return true
		}
	}
	return false
}
