// ABOUTME: Tests for YAML fixture loading and seeding through the store
// ABOUTME: Verifies views, prices and visibility land as declared

package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopebook/scopebook/internal/store"
)

const fixtureYAML = `
estimates:
  - title: "Kitchen remodel"
    views:
      - name: "Client"
        intro: "Thanks for **reviewing** this estimate."
      - name: "Contractor"
        password: "hunter2"
        hide_sections:
          - "Internal planning"
    sections:
      - name: "Demolition"
        items:
          - name: "Remove cabinets"
            unit: "h"
            quantity: 8
            prices:
              Client: 120
              Contractor: 80
      - name: "Internal planning"
        items:
          - name: "Site survey"
            unit: "h"
            quantity: 2
            prices:
              Client: 90
`

func setupSeeder(t *testing.T) (*Seeder, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewSeeder(st), st
}

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestSeeder_Apply(t *testing.T) {
	seeder, st := setupSeeder(t)
	ctx := context.Background()

	fx, err := Load(writeFixture(t, fixtureYAML))
	require.NoError(t, err)
	require.NoError(t, seeder.Apply(ctx, "owner-1", fx))

	estimates, err := st.ListEstimates(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, estimates, 1)

	tree, err := st.GetEstimateTree(ctx, "owner-1", estimates[0].ID)
	require.NoError(t, err)

	// The initial view was renamed, not duplicated.
	require.Len(t, tree.Views, 2)
	names := []string{tree.Views[0].Name, tree.Views[1].Name}
	assert.ElementsMatch(t, []string{"Client", "Contractor"}, names)

	var client, contractor *store.View
	for _, v := range tree.Views {
		switch v.Name {
		case "Client":
			client = v
		case "Contractor":
			contractor = v
		}
	}
	assert.Empty(t, client.Password)
	assert.Equal(t, "hunter2", contractor.Password)
	assert.Contains(t, client.Intro, "reviewing")

	require.Len(t, tree.Sections, 2)
	demo := tree.Sections[0]
	assert.Equal(t, "Demolition", demo.Section.Name)
	setting := demo.Items[0].Settings[client.ID]
	require.NotNil(t, setting)
	assert.Equal(t, 120.0, setting.Price)
	assert.Equal(t, 960.0, setting.Total)
	assert.Equal(t, 80.0, demo.Items[0].Settings[contractor.ID].Price)

	planning := tree.Sections[1]
	assert.False(t, planning.Visibility[contractor.ID])
	assert.True(t, planning.Visibility[client.ID])
}

func TestSeeder_UnknownViewInPrices(t *testing.T) {
	seeder, _ := setupSeeder(t)

	fx, err := Load(writeFixture(t, `
estimates:
  - title: "Broken"
    views:
      - name: "Only"
    sections:
      - name: "S"
        items:
          - name: "I"
            quantity: 1
            prices:
              Missing: 5
`))
	require.NoError(t, err)

	err = seeder.Apply(context.Background(), "owner-1", fx)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
