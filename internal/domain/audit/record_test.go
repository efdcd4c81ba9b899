package audit

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeworkhq/compliance-backend/internal/domain/errors"
)

func TestNewRecord(t *testing.T) {
	tests := []struct {
		name    string
		actor   string
		action  Action
		objType string
		objID   string
		wantErr bool
		errCode string
	}{
		{
			name:    "valid access record",
			actor:   "user-17",
			action:  ActionAccess,
			objType: "submission",
			objID:   "sub-1",
		},
		{
			name:   "anonymous actor allowed",
			actor:  "",
			action: ActionWebhook,
		},
		{
			name:    "missing action",
			actor:   "user-17",
			action:  "",
			wantErr: true,
			errCode: "MISSING_ACTION",
		},
		{
			name:    "unknown action",
			actor:   "user-17",
			action:  "sideways-edit",
			wantErr: true,
			errCode: "UNKNOWN_ACTION",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := NewRecord(tt.actor, tt.action, tt.objType, tt.objID, nil)
			if tt.wantErr {
				require.Error(t, err)
				var appErr *errors.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, tt.errCode, appErr.Code)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, rec.ID)
			assert.False(t, rec.Timestamp.IsZero())
			assert.NoError(t, rec.Validate())
		})
	}
}

func TestNewRecord_CopiesDetails(t *testing.T) {
	details := map[string]any{"source_system": "sap-eh"}

	rec, err := NewRecord("importer", ActionCreate, "submission", "sub-9", details)
	require.NoError(t, err)

	details["source_system"] = "changed-after-append"
	assert.Equal(t, "sap-eh", rec.Details["source_system"])
}
