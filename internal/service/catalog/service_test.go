package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/safeworkhq/compliance-backend/internal/domain/errors"
	"github.com/safeworkhq/compliance-backend/internal/domain/risk"
)

const testCatalog = `
industries:
  bau:
    name: Bau
    activities: [Gerüstbau, Hochbau]
    norms: [ISO 45001, BaustellenVO]
    hazards:
      - name: Absturz
        law: DGUV, BetrSichV
        ppe: [Auffanggurt, Helm]
        measures: Gerüstkontrolle, Absturzsicherung
        probability: 2
        severity: 4
        frequency: 1
      - name: Lärm
        law: LärmVibrationsArbSchV
        measures: Gehörschutz tragen
        probability: 1
        severity: 2
        frequency: 1
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewService_LoadsCatalog(t *testing.T) {
	svc, err := NewService(writeCatalog(t, testCatalog), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"bau"}, svc.Industries(context.Background()))
}

func TestNewService_MissingFile(t *testing.T) {
	_, err := NewService(filepath.Join(t.TempDir(), "absent.yaml"), zap.NewNop())
	assert.Error(t, err)
}

func TestNewService_RejectsInvalidFactors(t *testing.T) {
	bad := `
industries:
  bau:
    name: Bau
    hazards:
      - name: Absturz
        probability: 9
        severity: 4
        frequency: 1
`
	_, err := NewService(writeCatalog(t, bad), zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Absturz")
}

func TestChecklist(t *testing.T) {
	svc, err := NewService(writeCatalog(t, testCatalog), zap.NewNop())
	require.NoError(t, err)

	cl, err := svc.Checklist(context.Background(), "Bau")
	require.NoError(t, err)

	assert.Equal(t, "Bau", cl.Industry)
	assert.Equal(t, []string{"Gerüstbau", "Hochbau"}, cl.Activities)
	require.Len(t, cl.Items, 2)

	absturz := cl.Items[0]
	assert.Equal(t, "Absturz", absturz.Hazard)
	assert.Equal(t, 8, absturz.Rating.Score)
	assert.Equal(t, risk.ColorRed, absturz.Rating.Color)
	assert.Equal(t, "Hohes Risiko: Sofort handeln!", absturz.Rating.Advice)

	require.NotNil(t, absturz.Instruction)
	assert.Equal(t, "BA für Bau: Absturz", absturz.Instruction.Title)
	require.Len(t, absturz.Instruction.Steps, 4)
	assert.Equal(t, "Gefahr", absturz.Instruction.Steps[0].Section)
	assert.Equal(t, "Auffanggurt, Helm", absturz.Instruction.Steps[1].Content)

	require.NotNil(t, absturz.Briefing)
	assert.Equal(t, "Unterweisung Absturz", absturz.Briefing.Topic)
	require.Len(t, absturz.Briefing.Quiz, 2)

	laerm := cl.Items[1]
	assert.Equal(t, 2, laerm.Rating.Score)
	assert.Equal(t, risk.ColorGreen, laerm.Rating.Color)
}

func TestChecklist_UnknownIndustry(t *testing.T) {
	svc, err := NewService(writeCatalog(t, testCatalog), zap.NewNop())
	require.NoError(t, err)

	_, err = svc.Checklist(context.Background(), "metall")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}
