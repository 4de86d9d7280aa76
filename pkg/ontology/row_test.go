package ontology

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCase() Case {
	return Case{
		ID:          "c0ffee00-0000-4000-8000-000000000001",
		CaseNumber:  "CS-1001",
		AccountID:   "ACC-001",
		AccountName: "Harbour Bakery",
		Type:        "Billing",
		SubType:     "Bill Dispute",
		Status:      "New",
		Priority:    "High",
		SLAStatus:   "On Track",
		SLADeadline: "2026-10-21T09:00:00Z",
		Owner:       "Priya Shah",
		Team:        "Billing Ops",
		CreatedDate: "2026-10-18T09:00:00Z",
		UpdatedDate: "2026-10-18T09:30:00Z",
		Description: "Customer disputes estimated read",
		Communications: []Communication{
			{ID: "m1", Type: "email", Direction: "inbound", From: "owner@harbour.example", Subject: "Bill", Body: "Too high", Timestamp: "2026-10-18T09:00:00Z"},
			{ID: "m2", Type: "phone", Direction: "outbound", Body: "Called back", Timestamp: "2026-10-18T09:20:00Z"},
		},
		Activities: []Activity{
			{ID: "a1", Type: "created", Description: "Case created", User: "Priya Shah", Timestamp: "2026-10-18T09:00:00Z"},
		},
		Attachments:  []Attachment{},
		RelatedCases: []string{"CS-0990", "CS-0991"},
	}
}

func TestCaseRowRoundTrip(t *testing.T) {
	c := sampleCase()

	row, err := NewCaseRow(c)
	require.NoError(t, err)
	assert.Equal(t, "[]", row.Attachments.String)
	assert.Equal(t, `["CS-0990","CS-0991"]`, row.RelatedCases.String)
	assert.Equal(t, "Billing", row.CaseType)

	back, err := AdaptCase(row)
	require.NoError(t, err)
	assert.Equal(t, c, back)
}

func TestListRoundTrip(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		text, err := EncodeList([]Activity{})
		require.NoError(t, err)
		assert.Equal(t, "[]", text)

		items, err := DecodeList[Activity](text)
		require.NoError(t, err)
		assert.Equal(t, []Activity{}, items)
	})

	t.Run("single", func(t *testing.T) {
		in := []string{"CS-0001"}
		text, err := EncodeList(in)
		require.NoError(t, err)

		out, err := DecodeList[string](text)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("multiple nested", func(t *testing.T) {
		in := sampleCase().Communications
		text, err := EncodeList(in)
		require.NoError(t, err)

		out, err := DecodeList[Communication](text)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})
}

func TestEncodeListNilIsEmptyArray(t *testing.T) {
	text, err := EncodeList[Attachment](nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", text)
}

func TestDecodeListAbsentValues(t *testing.T) {
	for _, text := range []string{"", "  ", "null"} {
		items, err := DecodeList[Communication](text)
		require.NoError(t, err)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	}
}

func TestDecodeListMalformed(t *testing.T) {
	_, err := DecodeList[Activity]("{not json")
	assert.Error(t, err)
}

func TestAdaptCaseNullColumns(t *testing.T) {
	c, err := AdaptCase(CaseRow{
		ID:             "x",
		CaseNumber:     "CS-1",
		Communications: sql.NullString{},
		Activities:     sql.NullString{},
		Attachments:    sql.NullString{},
		RelatedCases:   sql.NullString{},
	})
	require.NoError(t, err)
	assert.NotNil(t, c.Communications)
	assert.NotNil(t, c.Activities)
	assert.NotNil(t, c.Attachments)
	assert.NotNil(t, c.RelatedCases)
}

func TestCaseColumnsMatchScanTargets(t *testing.T) {
	var row CaseRow
	assert.Len(t, row.ScanTargets(), len(CaseColumns))
	assert.Len(t, row.Values(), len(CaseColumns))
}
