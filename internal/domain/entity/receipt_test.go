package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvidenceID(t *testing.T) {
	assert.Equal(t, "job-1_F0001", EvidenceID("job-1", 1))
	assert.Equal(t, "job-1_F0123", EvidenceID("job-1", 123))
}

func TestBuildDescription(t *testing.T) {
	tests := []struct {
		name  string
		date  string
		store string
		want  string
	}{
		{"all known", "2025-04-01", "ローソン", "2025-04-01 ローソン 消耗品費"},
		{"sentinel date", UnknownDate, "ローソン", "日付不明 ローソン 消耗品費"},
		{"sentinel store", "2025-04-01", UnknownStore, "2025-04-01 店名不明 消耗品費"},
		{"empty values", "", "", "日付不明 店名不明 消耗品費"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildDescription(tt.date, tt.store, "消耗品費"))
		})
	}
}

func TestJob_IsCancelable(t *testing.T) {
	for status, want := range map[string]bool{
		JobStatusQueued:     true,
		JobStatusProcessing: true,
		JobStatusCompleted:  false,
		JobStatusFailed:     false,
		JobStatusCanceled:   false,
	} {
		job := &Job{Status: status}
		assert.Equal(t, want, job.IsCancelable(), status)
		assert.Equal(t, !want, job.IsTerminal(), status)
	}
}

func TestIsAccountCategory(t *testing.T) {
	assert.True(t, IsAccountCategory("交際費"))
	assert.True(t, IsAccountCategory(FallbackAccount))
	assert.False(t, IsAccountCategory("雑費"))
}
