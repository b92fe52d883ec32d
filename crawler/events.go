package crawler

import (
	"github.com/lukemcguire/offliner/ledger"
	"github.com/lukemcguire/offliner/result"
)

// CrawlEvent reports the outcome of a single page, stylesheet or image.
type CrawlEvent struct {
	Kind          ledger.Kind
	URL           string
	Status        ledger.Status
	LocalName     string
	Error         string
	ErrorCategory result.ErrorCategory

	// Running totals for this run.
	Pages   int
	Styles  int
	Images  int
	Failed  int
	Skipped int
	Fetches int
}
