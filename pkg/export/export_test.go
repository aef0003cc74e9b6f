package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Grade sheet",
		Headers: []string{"student", "grade"},
		Rows: []map[string]string{
			{"student": "Ana", "grade": "8.5"},
			{"student": "Bruno", "grade": ""},
		},
		Footer: []string{"average: 8.5"},
	}
}

func TestCSVExporterWritesRowsAndFooter(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "student,grade", lines[0])
	assert.Equal(t, "Ana,8.5", lines[1])
	assert.Equal(t, "Bruno,", lines[2])
	assert.Equal(t, "average: 8.5", lines[3])
}

func TestExportersRequireHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterProducesDocument(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 40))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 20))
}
