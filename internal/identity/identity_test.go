package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirikarn/edoc-pipeline/internal/fault"
)

func TestParseValid(t *testing.T) {
	id, err := Parse("2024573_1100245_mgr_NEW.zip")
	require.NoError(t, err)

	assert.Equal(t, "2024573", id.EmpID)
	assert.Equal(t, "1100245", id.ScanBy)
	assert.Equal(t, "mgr", id.RoleCode)
	assert.Equal(t, "Manager", id.Role)
	assert.Equal(t, "NEW", id.EventCode)
	assert.Equal(t, "New Hire", id.Event)
}

func TestParseCodeCaseInsensitive(t *testing.T) {
	id, err := Parse("1_2_MGR_new.zip")
	require.NoError(t, err)
	assert.Equal(t, "Manager", id.Role)
	assert.Equal(t, "New Hire", id.Event)
}

func TestParseInvalid(t *testing.T) {
	cases := []struct {
		name     string
		fileName string
	}{
		{"too few fields", "2024573_1100245_mgr.zip"},
		{"empty name", ".zip"},
		{"non-digit empID", "20A4573_1100245_mgr_NEW.zip"},
		{"non-digit scanBy", "2024573_11x0245_mgr_NEW.zip"},
		{"unknown role code", "2024573_1100245_zzz_NEW.zip"},
		{"unknown event code", "2024573_1100245_mgr_XXX.zip"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.fileName)
			require.Error(t, err)
			assert.Equal(t, fault.FilenameInvalid, fault.KindOf(err))
		})
	}
}

func TestRawFields(t *testing.T) {
	empID, scanBy := RawFields("20A4573_11x0245_mgr_NEW.zip")
	assert.Equal(t, "20A4573", empID)
	assert.Equal(t, "11x0245", scanBy)

	empID, scanBy = RawFields("lonely.zip")
	assert.Equal(t, "lonely", empID)
	assert.Equal(t, "", scanBy)
}
