package result

import "time"

// Failure records one resource that could not be mirrored. The reference
// to it is left pointing at the remote URL.
type Failure struct {
	URL           string        `json:"url"`
	Kind          string        `json:"kind"`                  // page, style or image
	StatusCode    int           `json:"status_code,omitempty"` // HTTP status code (0 if unreachable)
	Error         string        `json:"error,omitempty"`
	ErrorCategory ErrorCategory `json:"error_type"`
	SourcePage    string        `json:"source_page,omitempty"` // page that referenced the resource
}

// KindStats counts outcomes for one artifact kind.
type KindStats struct {
	Saved   int `json:"saved"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// CrawlStats contains aggregate statistics for a mirror run.
type CrawlStats struct {
	Pages    KindStats     `json:"pages"`
	Styles   KindStats     `json:"styles"`
	Images   KindStats     `json:"images"`
	Fetches  int           `json:"fetches"` // network requests issued this run
	Duration time.Duration `json:"duration"`
}

// Result represents the complete output of a mirror run.
type Result struct {
	Failures  []Failure  `json:"failures"`
	Stats     CrawlStats `json:"stats"`
	Cancelled bool       `json:"cancelled"`
}

// FailureCount is the number of resources that failed or were skipped.
func (s CrawlStats) FailureCount() int {
	return s.Pages.Failed + s.Pages.Skipped +
		s.Styles.Failed + s.Styles.Skipped +
		s.Images.Failed + s.Images.Skipped
}
