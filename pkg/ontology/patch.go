package ontology

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

type patchField struct {
	column string
	decode func(raw json.RawMessage) (interface{}, error)
}

// caseFields maps the patchable JSON keys of a Case to their column. id is not patchable.
var caseFields = map[string]patchField{
	"caseNumber":       {"case_number", requiredString},
	"accountId":        {"account_id", scalarString},
	"accountName":      {"account_name", scalarString},
	"type":             {"case_type", scalarString},
	"subType":          {"sub_type", scalarString},
	"status":           {"status", scalarString},
	"priority":         {"priority", scalarString},
	"slaStatus":        {"sla_status", scalarString},
	"slaDeadline":      {"sla_deadline", scalarString},
	"slaTimeRemaining": {"sla_time_remaining", scalarString},
	"owner":            {"owner", scalarString},
	"team":             {"team", scalarString},
	"createdDate":      {"created_date", scalarString},
	"updatedDate":      {"updated_date", scalarString},
	"description":      {"description", scalarString},
	"resolution":       {"resolution", scalarString},
	"pendingReason":    {"pending_reason", scalarString},
	"communications":   {"communications", listColumn[Communication]},
	"activities":       {"activities", listColumn[Activity]},
	"attachments":      {"attachments", listColumn[Attachment]},
	"relatedCases":     {"related_cases", listColumn[string]},
}

// PatchColumns translates the supplied keys of a partial case body into
// column updates. Unrecognized keys are ignored; an empty result means the
// patch carries nothing to write.
func PatchColumns(patch map[string]json.RawMessage) (map[string]interface{}, error) {
	columns := make(map[string]interface{}, len(patch))
	for key, raw := range patch {
		field, ok := caseFields[key]
		if !ok {
			continue
		}
		value, err := field.decode(raw)
		if err != nil {
			return nil, errors.Wrapf(ErrBadParameter, "%s: %s", key, err.Error())
		}
		columns[field.column] = value
	}
	return columns, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func scalarString(raw json.RawMessage) (interface{}, error) {
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.New("expected a string")
	}
	return s, nil
}

func requiredString(raw json.RawMessage) (interface{}, error) {
	v, err := scalarString(raw)
	if err != nil {
		return nil, err
	}
	if v == "" {
		return nil, errors.New("must not be empty")
	}
	return v, nil
}

func listColumn[T any](raw json.RawMessage) (interface{}, error) {
	if isNull(raw) {
		return EncodeList[T](nil)
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.New("expected an array")
	}
	return EncodeList(items)
}
