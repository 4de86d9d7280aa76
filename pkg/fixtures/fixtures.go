// Package fixtures holds the mock CRM datasets served in every mode and used
// to seed an empty case store.
package fixtures

import (
	"embed"
	"encoding/json"

	"energy-crm/pkg/ontology"

	"github.com/cockroachdb/errors"
)

//go:embed data/*.json
var dataFS embed.FS

type Dataset struct {
	Orgs          []ontology.Org
	Accounts      []ontology.Account
	Contacts      []ontology.Contact
	Opportunities []ontology.Opportunity
	Cases         []ontology.Case
}

// Load decodes every embedded dataset. Each call returns fresh copies.
func Load() (*Dataset, error) {
	var ds Dataset
	files := []struct {
		name string
		dst  interface{}
	}{
		{"data/orgs.json", &ds.Orgs},
		{"data/accounts.json", &ds.Accounts},
		{"data/contacts.json", &ds.Contacts},
		{"data/opportunities.json", &ds.Opportunities},
		{"data/cases.json", &ds.Cases},
	}

	for _, f := range files {
		raw, err := dataFS.ReadFile(f.name)
		if err != nil {
			return nil, errors.Wrapf(err, "read fixture %s", f.name)
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return nil, errors.Wrapf(err, "decode fixture %s", f.name)
		}
	}

	return &ds, nil
}
