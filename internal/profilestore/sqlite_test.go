package profilestore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-match-server/internal/domain"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "profilestore-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := NewSQLiteStore(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	return store
}

func testProfile(patientID string) *domain.PatientProfile {
	age := 62
	ecog := 1
	return &domain.PatientProfile{
		PatientID:         patientID,
		Age:               &age,
		Gender:            "female",
		CancerType:        "NSCLC",
		CancerStage:       "IV",
		Biomarkers:        map[string]bool{"EGFR": true, "ALK": false},
		PriorTreatments:   []string{"Carboplatin", "Pemetrexed"},
		PerformanceStatus: &ecog,
		Location:          &domain.Location{City: "Boston", State: "MA", Country: "USA"},
	}
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "profilestore-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	profile := testProfile("PT001")

	err := store.Save(ctx, profile)
	require.NoError(t, err)

	loaded, err := store.Get(ctx, "PT001")
	require.NoError(t, err)

	assert.Equal(t, profile.PatientID, loaded.PatientID)
	assert.Equal(t, profile.CancerType, loaded.CancerType)
	assert.Equal(t, profile.Biomarkers, loaded.Biomarkers)
	assert.Equal(t, profile.PriorTreatments, loaded.PriorTreatments)
	require.NotNil(t, loaded.PerformanceStatus)
	assert.Equal(t, 1, *loaded.PerformanceStatus)
	require.NotNil(t, loaded.Location)
	assert.Equal(t, "Boston", loaded.Location.City)
}

func TestSQLiteStore_SaveUpdate(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	profile := testProfile("PT001")
	require.NoError(t, store.Save(ctx, profile))

	profile.CancerStage = "IIIB"
	profile.Biomarkers["KRAS"] = true
	require.NoError(t, store.Save(ctx, profile))

	loaded, err := store.Get(ctx, "PT001")
	require.NoError(t, err)
	assert.Equal(t, "IIIB", loaded.CancerStage)
	assert.True(t, loaded.Biomarkers["KRAS"])

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "update should not create a second row")
}

func TestSQLiteStore_SaveInvalidProfile(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	err := store.Save(context.Background(), &domain.PatientProfile{})
	require.Error(t, err)

	var validationErr *domain.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestSQLiteStore_GetNotFound(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	profile, err := store.Get(context.Background(), "PT404")
	require.Error(t, err)
	assert.Nil(t, profile)

	var agentErr *domain.AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, domain.ErrNotFound, agentErr.Code)
}

func TestSQLiteStore_ListAndDelete(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, testProfile(fmt.Sprintf("PT%03d", i))))
	}

	profiles, err := store.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, profiles, 3)

	require.NoError(t, store.Delete(ctx, "PT001"))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSQLiteStore_ExportImport(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, testProfile("PT001")))
	require.NoError(t, store.Save(ctx, testProfile("PT002")))

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(ctx, &buf))

	other := createTestStore(t)
	defer other.Close()
	require.NoError(t, other.Save(ctx, testProfile("PT001")))

	imported, skipped, err := other.ImportJSON(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, imported, "PT002 is new")
	assert.Equal(t, 1, skipped, "PT001 already exists")

	count, err := other.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
