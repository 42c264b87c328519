package sweep

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummary_String(t *testing.T) {
	s := &Summary{
		RunID:       "r-1",
		ChatsWalked: 3,
		Scanned:     120,
		Deleted:     45,
		Duration:    90 * time.Second,
	}
	out := s.String()
	assert.Contains(t, out, "run r-1")
	assert.Contains(t, out, "3 chats walked")
	assert.Contains(t, out, "120 messages scanned")
	assert.Contains(t, out, "45 deleted")
	assert.NotContains(t, out, "dry run")
	assert.NotContains(t, out, "skipped")
}

func TestSummary_String_DryRunAndPartial(t *testing.T) {
	s := &Summary{RunID: "r-2", DryRun: true, WouldDelete: 9, Partial: true}
	out := s.String()
	assert.Contains(t, out, "9 would be deleted")
	assert.Contains(t, out, "stopped early")
}

func TestSummary_RecordSkippedBounded(t *testing.T) {
	s := &Summary{}
	ids := make([]int, 25)
	for i := range ids {
		ids[i] = i + 1
	}
	s.recordSkipped(42, ids)

	assert.Equal(t, 25, s.SkippedPermanently)
	assert.Len(t, s.SkippedSamples, maxSkippedSamples)
	assert.Equal(t, "42/1", s.SkippedSamples[0])
}
