package monitor

import (
	"regexp"
	"strconv"
	"strings"

	"consolidador/internal/domain"
)

var (
	contractMarker = regexp.MustCompile(`CONTRATO \[(\d+)/(\d+)\]`)
	servicesCount  = regexp.MustCompile(`([\d,]+) servicios`)
)

// Stats are live figures inferred from log text. They are for display only;
// the backend's counters remain authoritative for progress and state.
type Stats struct {
	CurrentContract int
	TotalContracts  int
	Successes       int
	Errors          int
	Services        int
}

// ComputeStats scans entries in order. The contract counter reflects only the
// last marker seen.
func ComputeStats(entries []domain.LogEntry) Stats {
	var s Stats
	for _, e := range entries {
		s.Observe(e.Text)
	}
	return s
}

// Observe folds one more log line into s.
func (s *Stats) Observe(text string) {
	if m := contractMarker.FindStringSubmatch(text); m != nil {
		current, errCur := strconv.Atoi(m[1])
		total, errTot := strconv.Atoi(m[2])
		if errCur == nil && errTot == nil {
			s.CurrentContract = current
			s.TotalContracts = total
		}
	}
	if strings.Contains(text, "✅") && strings.Contains(text, "servicios") {
		s.Successes++
		if m := servicesCount.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
				s.Services += n
			}
		}
	}
	if strings.Contains(text, "❌") || strings.Contains(text, "ERROR") {
		s.Errors++
	}
}

// withCounters prefers structured contract counters when the backend sent them.
func (s Stats) withCounters(processed, total int) Stats {
	if total > 0 {
		s.CurrentContract = processed
		s.TotalContracts = total
	}
	return s
}

// FilterEntries keeps the entries whose text contains query, ignoring case.
// An empty query keeps everything.
func FilterEntries(entries []domain.LogEntry, query string) []domain.LogEntry {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return entries
	}
	out := make([]domain.LogEntry, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Text), query) {
			out = append(out, e)
		}
	}
	return out
}
