package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeRecord_Decode(t *testing.T) {
	data := []byte(`{
		"table": "professors",
		"action": "insert",
		"key_fields": {"id": "p1", "school_id": "marist"},
		"changed_fields": {"name": "Ada", "email_address": null}
	}`)

	var rec ChangeRecord
	require.NoError(t, json.Unmarshal(data, &rec))

	assert.Equal(t, TableProfessors, rec.Table)
	assert.Equal(t, ActionInsert, rec.Action)
	assert.Equal(t, []string{"id", "school_id"}, rec.KeyFields.Names())
	assert.Equal(t, []string{"name", "email_address"}, rec.ChangedFields.Names())
}

func TestChangeRecord_DecodeWithoutChangedFields(t *testing.T) {
	var rec ChangeRecord
	require.NoError(t, json.Unmarshal([]byte(`{"table":"courses","action":"delete","key_fields":{"id":1}}`), &rec))
	assert.Nil(t, rec.ChangedFields)

	require.NoError(t, json.Unmarshal([]byte(`{"table":"courses","action":"update","key_fields":{"id":1},"changed_fields":null}`), &rec))
	assert.Nil(t, rec.ChangedFields)
}

func TestChangeRecord_RejectsUnknownTable(t *testing.T) {
	var rec ChangeRecord
	err := json.Unmarshal([]byte(`{"table":"sqlite_master","action":"delete","key_fields":{"id":1}}`), &rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a catalog table")
}

func TestChangeRecord_RejectsUnknownAction(t *testing.T) {
	var rec ChangeRecord
	err := json.Unmarshal([]byte(`{"table":"courses","action":"upsert","key_fields":{"id":1}}`), &rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")
}

func TestScopeEntry_JSON(t *testing.T) {
	var whole ScopeEntry
	require.NoError(t, json.Unmarshal([]byte(`6929`), &whole))
	assert.True(t, whole.IsWholeSchool())
	assert.Equal(t, uint64(6929), whole.Sequence)

	var terms ScopeEntry
	require.NoError(t, json.Unmarshal([]byte(`{"202440": 6929, "202540": 0}`), &terms))
	assert.False(t, terms.IsWholeSchool())
	assert.Equal(t, map[string]uint64{"202440": 6929, "202540": 0}, terms.Terms)

	data, err := json.Marshal(SchoolEntry(12))
	require.NoError(t, err)
	assert.Equal(t, `12`, string(data))

	data, err = json.Marshal(TermEntries(map[string]uint64{"202440": 3}))
	require.NoError(t, err)
	assert.Equal(t, `{"202440":3}`, string(data))
}

func TestScopeEntry_RejectsNull(t *testing.T) {
	var payload SelectResultPayload
	err := json.Unmarshal([]byte(`{"updated_watermarks": {"marist": null}, "changes": [], "any_has_more": false}`), &payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got null")
}

func TestSelectRequest_WireShape(t *testing.T) {
	req := NewSelectRequest(MaxRecords(DefaultMaxRecords))
	require.NoError(t, req.AddTerm("marist", "202440", 0))
	require.NoError(t, req.AddSchool("temple", 55))
	require.NoError(t, req.AddExclusion("temple", "202420", 40))

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"exclude": {"temple": {"202420": 40}},
		"max_records": 10000,
		"schools": {"marist": {"202440": 0}, "temple": 55}
	}`, string(data))
}

func TestSelectRequest_AddConflicts(t *testing.T) {
	req := NewSelectRequest(nil)
	require.NoError(t, req.AddSchool("marist", 1))
	assert.Error(t, req.AddSchool("marist", 2))
	assert.Error(t, req.AddTerm("marist", "202440", 0))

	require.NoError(t, req.AddTerm("temple", "202440", 0))
	assert.Error(t, req.AddTerm("temple", "202440", 1))

	require.NoError(t, req.AddExclusion("marist", "202420", 5))
	assert.Error(t, req.AddExclusion("marist", "202420", 5))
}

func TestAllRequest_WireShape(t *testing.T) {
	data, err := json.Marshal(AllRequest{LastSync: 6303, MaxRecords: MaxRecords(DefaultMaxRecords)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"last_sync": 6303, "max_records": 10000}`, string(data))

	data, err = json.Marshal(AllRequest{LastSync: 0, MaxRecords: MaxRecords(0)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"last_sync": 0, "max_records": null}`, string(data))
}

func TestSelectResultPayload_ScopeWatermarks(t *testing.T) {
	var payload SelectResultPayload
	require.NoError(t, json.Unmarshal([]byte(`{
		"updated_watermarks": {"temple": 80, "marist": {"202540": 12, "202440": 6929}},
		"changes": [],
		"any_has_more": false
	}`), &payload))

	assert.Equal(t, []ScopeWatermark{
		{Scope: TermScope("marist", "202440"), Watermark: 6929},
		{Scope: TermScope("marist", "202540"), Watermark: 12},
		{Scope: SchoolScope("temple"), Watermark: 80},
	}, payload.ScopeWatermarks())
}

func TestSelection_Scopes(t *testing.T) {
	sel := Selection{
		"temple": SelectTermData("202540", "202440"),
		"marist": AllSchoolData(),
	}
	assert.Equal(t, []Scope{
		SchoolScope("marist"),
		TermScope("temple", "202440"),
		TermScope("temple", "202540"),
	}, sel.Scopes())
	assert.Equal(t, "marist;temple,202440,202540", sel.String())
}

func TestModeOf(t *testing.T) {
	assert.Equal(t, ModeUnset, ModeOf(false, false))
	assert.Equal(t, ModeAll, ModeOf(true, false))
	assert.Equal(t, ModeSelect, ModeOf(false, true))
	assert.Equal(t, ModeDirty, ModeOf(true, true))
	assert.Equal(t, "dirty", ModeDirty.String())
}
