package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/loadboard/internal/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestReadLoadFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "load.yaml",
			content: `reference: PO-1001
serviceAddress:
  line1: 10 Main St
  city: Brisbane
items:
  - description: Pallet of bricks
    quantity: 2
`,
		},
		{
			name:    "json",
			file:    "load.json",
			content: `{"reference":"PO-1001","serviceAddress":{"line1":"10 Main St","city":"Brisbane"},"items":[{"description":"Pallet of bricks","quantity":2}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := readLoadFile(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)
			assert.Equal(t, "PO-1001", in.Reference)
			assert.Equal(t, "Brisbane", in.ServiceAddress.City)
			require.Len(t, in.Items, 1)
			assert.Equal(t, 2, in.Items[0].Quantity)
		})
	}
}

func TestReadLoadFileUnknownField(t *testing.T) {
	_, err := readLoadFile(writeFile(t, "load.yaml", "reference: PO-1\ncolour: blue\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid load file")
}

func TestLoadsListFilter(t *testing.T) {
	cmd := &LoadsListCmd{Status: "draft", From: "2026-03-01", To: "2026-03-31", Limit: 20}

	f, err := cmd.filter()
	require.NoError(t, err)
	assert.Equal(t, models.LoadStatusDraft, f.Status)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), f.From)
	assert.Equal(t, time.Date(2026, 3, 31, 23, 59, 59, 999999999, time.UTC), f.To)
	assert.Equal(t, 20, f.Limit)

	_, err = (&LoadsListCmd{Status: "lost"}).filter()
	require.Error(t, err)

	_, err = (&LoadsListCmd{From: "March"}).filter()
	require.Error(t, err)
}

func TestPrintLoads(t *testing.T) {
	var buf bytes.Buffer
	printLoads(&buf, nil)
	assert.Equal(t, "No loads found.\n", buf.String())

	driver := uuid.New()
	changed := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	buf.Reset()
	printLoads(&buf, []*models.Load{
		{
			ID:               uuid.New(),
			Reference:        "PO-000000000000000000001",
			Status:           models.LoadStatusAssigned,
			AssignedDriverID: &driver,
			ServiceAddress:   models.Address{City: "Brisbane"},
			StatusChangedAt:  changed,
		},
		{
			ID:              uuid.New(),
			Status:          models.LoadStatusDraft,
			ServiceAddress:  models.Address{City: "Cairns"},
			StatusChangedAt: changed,
		},
	})

	out := buf.String()
	assert.Contains(t, out, "PO-00000000000000...")
	assert.Contains(t, out, driver.String())
	assert.Contains(t, out, "2026-03-04 09:30")
	assert.Contains(t, out, "Total loads: 2")
}

func TestPrintEvent(t *testing.T) {
	var buf bytes.Buffer
	printEvent(&buf, &models.LoadEvent{
		Type:      "load.cancelled",
		ActorID:   "actor-1",
		Timestamp: time.Now(),
		Meta:      map[string]string{"to": "CANCELLED", "from": "DRAFT"},
	})

	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, "load.cancelled")
	assert.Contains(t, line, "by actor-1")
	assert.True(t, strings.HasSuffix(line, "(from=DRAFT, to=CANCELLED)"), line)
}
