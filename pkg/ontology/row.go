package ontology

import (
	"bytes"
	"database/sql"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

const TableCases = "cases"

// CaseRow is the storage representation of a Case: scalars pass through and
// the four collections are JSON text.
type CaseRow struct {
	ID               string         `db:"id"`
	CaseNumber       string         `db:"case_number"`
	AccountID        string         `db:"account_id"`
	AccountName      string         `db:"account_name"`
	CaseType         string         `db:"case_type"`
	SubType          string         `db:"sub_type"`
	Status           string         `db:"status"`
	Priority         string         `db:"priority"`
	SLAStatus        string         `db:"sla_status"`
	SLADeadline      string         `db:"sla_deadline"`
	SLATimeRemaining string         `db:"sla_time_remaining"`
	Owner            string         `db:"owner"`
	Team             string         `db:"team"`
	CreatedDate      string         `db:"created_date"`
	UpdatedDate      string         `db:"updated_date"`
	Description      string         `db:"description"`
	Resolution       string         `db:"resolution"`
	PendingReason    string         `db:"pending_reason"`
	Communications   sql.NullString `db:"communications"`
	Activities       sql.NullString `db:"activities"`
	Attachments      sql.NullString `db:"attachments"`
	RelatedCases     sql.NullString `db:"related_cases"`
}

// CaseColumns is the column order used by SELECT and INSERT, matching ScanTargets and Values.
var CaseColumns = []string{
	"id", "case_number", "account_id", "account_name", "case_type", "sub_type",
	"status", "priority", "sla_status", "sla_deadline", "sla_time_remaining",
	"owner", "team", "created_date", "updated_date", "description", "resolution",
	"pending_reason", "communications", "activities", "attachments", "related_cases",
}

func (r *CaseRow) ScanTargets() []interface{} {
	return []interface{}{
		&r.ID, &r.CaseNumber, &r.AccountID, &r.AccountName, &r.CaseType, &r.SubType,
		&r.Status, &r.Priority, &r.SLAStatus, &r.SLADeadline, &r.SLATimeRemaining,
		&r.Owner, &r.Team, &r.CreatedDate, &r.UpdatedDate, &r.Description, &r.Resolution,
		&r.PendingReason, &r.Communications, &r.Activities, &r.Attachments, &r.RelatedCases,
	}
}

func (r CaseRow) Values() []interface{} {
	return []interface{}{
		r.ID, r.CaseNumber, r.AccountID, r.AccountName, r.CaseType, r.SubType,
		r.Status, r.Priority, r.SLAStatus, r.SLADeadline, r.SLATimeRemaining,
		r.Owner, r.Team, r.CreatedDate, r.UpdatedDate, r.Description, r.Resolution,
		r.PendingReason, r.Communications.String, r.Activities.String, r.Attachments.String, r.RelatedCases.String,
	}
}

func NewCaseRow(c Case) (CaseRow, error) {
	row := CaseRow{
		ID:               c.ID,
		CaseNumber:       c.CaseNumber,
		AccountID:        c.AccountID,
		AccountName:      c.AccountName,
		CaseType:         c.Type,
		SubType:          c.SubType,
		Status:           c.Status,
		Priority:         c.Priority,
		SLAStatus:        c.SLAStatus,
		SLADeadline:      c.SLADeadline,
		SLATimeRemaining: c.SLATimeRemaining,
		Owner:            c.Owner,
		Team:             c.Team,
		CreatedDate:      c.CreatedDate,
		UpdatedDate:      c.UpdatedDate,
		Description:      c.Description,
		Resolution:       c.Resolution,
		PendingReason:    c.PendingReason,
	}

	var err error
	if row.Communications, err = encodeColumn(c.Communications); err != nil {
		return CaseRow{}, errors.Wrap(err, "communications")
	}
	if row.Activities, err = encodeColumn(c.Activities); err != nil {
		return CaseRow{}, errors.Wrap(err, "activities")
	}
	if row.Attachments, err = encodeColumn(c.Attachments); err != nil {
		return CaseRow{}, errors.Wrap(err, "attachments")
	}
	if row.RelatedCases, err = encodeColumn(c.RelatedCases); err != nil {
		return CaseRow{}, errors.Wrap(err, "relatedCases")
	}
	return row, nil
}

func AdaptCase(row CaseRow) (Case, error) {
	c := Case{
		ID:               row.ID,
		CaseNumber:       row.CaseNumber,
		AccountID:        row.AccountID,
		AccountName:      row.AccountName,
		Type:             row.CaseType,
		SubType:          row.SubType,
		Status:           row.Status,
		Priority:         row.Priority,
		SLAStatus:        row.SLAStatus,
		SLADeadline:      row.SLADeadline,
		SLATimeRemaining: row.SLATimeRemaining,
		Owner:            row.Owner,
		Team:             row.Team,
		CreatedDate:      row.CreatedDate,
		UpdatedDate:      row.UpdatedDate,
		Description:      row.Description,
		Resolution:       row.Resolution,
		PendingReason:    row.PendingReason,
	}

	var err error
	if c.Communications, err = DecodeList[Communication](row.Communications.String); err != nil {
		return Case{}, errors.Wrapf(err, "case %s: communications", row.ID)
	}
	if c.Activities, err = DecodeList[Activity](row.Activities.String); err != nil {
		return Case{}, errors.Wrapf(err, "case %s: activities", row.ID)
	}
	if c.Attachments, err = DecodeList[Attachment](row.Attachments.String); err != nil {
		return Case{}, errors.Wrapf(err, "case %s: attachments", row.ID)
	}
	if c.RelatedCases, err = DecodeList[string](row.RelatedCases.String); err != nil {
		return Case{}, errors.Wrapf(err, "case %s: relatedCases", row.ID)
	}
	return c, nil
}

// EncodeList serializes a collection for a text column. A nil slice is stored as "[]".
func EncodeList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode list")
	}
	return string(b), nil
}

// DecodeList parses a text column back into a collection. Empty and "null"
// values decode to an empty, non-nil slice.
func DecodeList[T any](text string) ([]T, error) {
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, errors.Wrap(err, "failed to decode list")
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func encodeColumn[T any](items []T) (sql.NullString, error) {
	s, err := EncodeList(items)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: s, Valid: true}, nil
}
