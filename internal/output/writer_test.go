package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gustycube/certwatch/internal/check"
	"github.com/gustycube/certwatch/internal/types"
)

func sampleResult() *check.BatchResult {
	return &check.BatchResult{
		Summary: types.Summary{
			RunID:      "run-1",
			Total:      2,
			Succeeded:  1,
			Failed:     1,
			Duration:   1500 * time.Millisecond,
			FinishedAt: time.Unix(1772366400, 0),
		},
		Outcomes: []check.Outcome{
			{Domain: "a.example", Status: check.StatusFailed, Err: errors.New("no certificates found for a.example")},
			{Domain: "b.example", Status: check.StatusSucceeded, Info: &types.CertInfo{
				DaysRemaining: 0, ExpirationDate: "2026-03-01T12:00:00", ValidFrom: "2025-12-01T12:00:00", Issuer: "R3",
			}},
		},
	}
}

func TestNewWriter_UnknownFormat(t *testing.T) {
	_, err := NewWriter("xml", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestWriteBatch_JSON(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter("json", &buf)
	require.NoError(t, err)
	require.NoError(t, w.WriteBatch(sampleResult()))

	var got struct {
		Summary map[string]interface{} `json:"summary"`
		Results []Row                  `json:"results"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got.Summary["runId"])
	assert.Equal(t, float64(1500), got.Summary["durationMs"])
	require.Len(t, got.Results, 2)
	assert.Equal(t, "failed", got.Results[0].Status)
	assert.Nil(t, got.Results[0].DaysRemaining)
	require.NotNil(t, got.Results[1].DaysRemaining)
	assert.Equal(t, 0, *got.Results[1].DaysRemaining)
}

func TestWriteBatch_JSONL(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter("ndjson", &buf)
	require.NoError(t, err)
	require.NoError(t, w.WriteBatch(sampleResult()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"status":"failed"`)
	assert.Contains(t, lines[1], `"issuer":"R3"`)
}

func TestWriteBatch_CSV(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter("csv", &buf)
	require.NoError(t, err)
	require.NoError(t, w.WriteBatch(sampleResult()))
	require.NoError(t, w.WriteBatch(sampleResult()))
	require.NoError(t, w.Flush())

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5, "one header followed by two rows per batch")
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"b.example", "succeeded", "0", "2026-03-01T12:00:00", "2025-12-01T12:00:00", "R3", ""}, records[2])
	assert.Equal(t, "", records[1][2])
}
