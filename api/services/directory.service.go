package services

import (
	"strings"
	"sync"

	"energy-crm/pkg/fixtures"
	"energy-crm/pkg/ontology"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

// DirectoryService serves orgs, accounts, contacts and the opportunity
// pipeline from in-memory fixtures. Nothing here is persisted.
type DirectoryService struct {
	mu   sync.RWMutex
	data *fixtures.Dataset
	log  *logrus.Entry
}

func NewDirectoryService(data *fixtures.Dataset, log *logrus.Entry) *DirectoryService {
	return &DirectoryService{
		data: data,
		log:  log.WithField("component", "directory-service"),
	}
}

func (s *DirectoryService) ListOrgs() []ontology.Org {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ontology.Org{}, s.data.Orgs...)
}

func (s *DirectoryService) GetOrg(id string) (*ontology.Org, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.data.Orgs {
		if o.ID == id {
			return &o, nil
		}
	}
	return nil, errors.Wrapf(ontology.ErrNotFound, "org %s", id)
}

// ListAccounts filters by org id and a case-insensitive match on name,
// account number or NMI. Empty filters match everything.
func (s *DirectoryService) ListAccounts(orgID, q string) []ontology.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q = strings.ToLower(strings.TrimSpace(q))
	accounts := []ontology.Account{}
	for _, a := range s.data.Accounts {
		if orgID != "" && a.OrgID != orgID {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(a.Name), q) &&
			!strings.Contains(strings.ToLower(a.AccountNumber), q) &&
			!strings.Contains(strings.ToLower(a.NMI), q) {
			continue
		}
		accounts = append(accounts, a)
	}
	return accounts
}

func (s *DirectoryService) GetAccount(id string) (*ontology.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.data.Accounts {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, errors.Wrapf(ontology.ErrNotFound, "account %s", id)
}

func (s *DirectoryService) ListContacts(accountID string) []ontology.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contacts := []ontology.Contact{}
	for _, c := range s.data.Contacts {
		if accountID != "" && c.AccountID != accountID {
			continue
		}
		contacts = append(contacts, c)
	}
	return contacts
}

func (s *DirectoryService) GetContact(id string) (*ontology.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.data.Contacts {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, errors.Wrapf(ontology.ErrNotFound, "contact %s", id)
}

func (s *DirectoryService) ListOpportunities(stage string) []ontology.Opportunity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	opps := []ontology.Opportunity{}
	for _, o := range s.data.Opportunities {
		if stage != "" && o.Stage != stage {
			continue
		}
		opps = append(opps, o)
	}
	return opps
}

// MoveOpportunity changes the pipeline stage of an opportunity.
func (s *DirectoryService) MoveOpportunity(id, stage string) (*ontology.Opportunity, error) {
	if !ontology.IsPipelineStage(stage) {
		return nil, errors.Wrapf(ontology.ErrBadParameter, "unknown stage %q", stage)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Opportunities {
		if s.data.Opportunities[i].ID == id {
			from := s.data.Opportunities[i].Stage
			s.data.Opportunities[i].Stage = stage
			s.log.WithFields(logrus.Fields{"opportunity": id, "from": from, "to": stage}).Info("opportunity moved")
			o := s.data.Opportunities[i]
			return &o, nil
		}
	}
	return nil, errors.Wrapf(ontology.ErrNotFound, "opportunity %s", id)
}

// Pipeline groups opportunities into the board's stages, in board order.
func (s *DirectoryService) Pipeline() []ontology.PipelineStage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stages := make([]ontology.PipelineStage, len(ontology.PipelineStages))
	index := make(map[string]int, len(ontology.PipelineStages))
	for i, name := range ontology.PipelineStages {
		stages[i] = ontology.PipelineStage{Stage: name, Opportunities: []ontology.Opportunity{}}
		index[name] = i
	}

	for _, o := range s.data.Opportunities {
		i, ok := index[o.Stage]
		if !ok {
			continue
		}
		stages[i].Opportunities = append(stages[i].Opportunities, o)
		stages[i].Count++
		stages[i].TotalValue += o.Value
	}
	return stages
}
