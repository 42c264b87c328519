package sweep

import (
	"fmt"
	"strings"
	"time"
)

// maxSkippedSamples bounds how many skipped identifiers the summary
// carries; the full list is only interesting in logs.
const maxSkippedSamples = 10

// Summary is the user-visible outcome of one run.
type Summary struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Resumed   bool
	DryRun    bool
	// Partial is true when the run stopped on a cancellation signal
	// after draining the in-flight batch.
	Partial bool

	ChatsWalked        int
	ChatsOutOfScope    int
	Scanned            int
	Deleted            int
	WouldDelete        int
	SkippedPermanently int
	SkippedSamples     []string
}

func (s *Summary) recordSkipped(chatID int64, ids []int) {
	s.SkippedPermanently += len(ids)
	for _, id := range ids {
		if len(s.SkippedSamples) >= maxSkippedSamples {
			return
		}
		s.SkippedSamples = append(s.SkippedSamples, fmt.Sprintf("%d/%d", chatID, id))
	}
}

// String renders a single-line human summary for logs and notifications.
func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %d chats walked, %d messages scanned, %d deleted",
		s.RunID, s.ChatsWalked, s.Scanned, s.Deleted)
	if s.DryRun {
		fmt.Fprintf(&b, " (dry run, %d would be deleted)", s.WouldDelete)
	}
	if s.SkippedPermanently > 0 {
		fmt.Fprintf(&b, ", %d skipped permanently (first: %s)",
			s.SkippedPermanently, strings.Join(s.SkippedSamples, ", "))
	}
	if s.Partial {
		b.WriteString(", stopped early on cancellation")
	}
	fmt.Fprintf(&b, ", took %s", s.Duration.Round(time.Second))
	return b.String()
}
