package node

import "time"

// ProgressReporter provides callbacks for reporting reindex progress.
// Implementations can display progress bars, log messages, or remain silent.
type ProgressReporter interface {
	// OnIndexStart is called before an index is rebuilt.
	OnIndexStart(indexID string, totalRecords int)

	// OnRecordsIndexed is called after each page of records.
	OnRecordsIndexed(indexID string, processed int)

	// OnIndexComplete is called when an index has been rebuilt.
	OnIndexComplete(indexID string, processed int, duration time.Duration)
}

// NoOpProgressReporter is a progress reporter that does nothing.
type NoOpProgressReporter struct{}

func (NoOpProgressReporter) OnIndexStart(string, int)                   {}
func (NoOpProgressReporter) OnRecordsIndexed(string, int)               {}
func (NoOpProgressReporter) OnIndexComplete(string, int, time.Duration) {}
