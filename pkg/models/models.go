package models

import (
	"sort"
	"time"
)

// NoEntityPlaceholder is the associated-entities value used when a page yields no usable labels
const NoEntityPlaceholder = "See city results"

// Target is a directory sub-page discovered from the root page. URL is the identity key.
type Target struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// PageSnapshot is what a single target fetch yields before extraction. Never persisted.
type PageSnapshot struct {
	RawText               string
	CandidateEntityLabels []string
}

// ContactRecord is one (target, email) association destined for the report
type ContactRecord struct {
	Target             Target `json:"target"`
	Email              string `json:"email"`
	AssociatedEntities string `json:"associated_entities"`
	SourceURL          string `json:"source_url"`
}

// TargetResult is the outcome of processing one target.
// Err is informational only: a failed target still yields a (possibly empty) result.
type TargetResult struct {
	Records []ContactRecord
	Emails  map[string]struct{}
	Phones  map[string]struct{}
	Err     error
}

// TargetDBEntry stores the processing result of a target URL in the checkpoint database
type TargetDBEntry struct {
	Status      TargetStatus    `json:"status"`
	ErrorType   string          `json:"error_type,omitempty"`   // Error category (on failure)
	Name        string          `json:"name"`                   // Target display name at time of processing
	Records     []ContactRecord `json:"records,omitempty"`      // Records produced (on success)
	Emails      []string        `json:"emails,omitempty"`       // Sorted unique emails
	Phones      []string        `json:"phones,omitempty"`       // Sorted unique phones
	ProcessedAt time.Time       `json:"processed_at,omitempty"` // Timestamp of successful processing
	LastAttempt time.Time       `json:"last_attempt"`
}

// TargetCount is one row of the per-target summary
type TargetCount struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"emails"`
}

// CrawlReport accumulates the results of a run. Only the coordinator mutates it.
type CrawlReport struct {
	RunID             string
	Records           []ContactRecord
	UniqueEmails      map[string]struct{}
	UniquePhones      map[string]struct{}
	TargetsDiscovered int
	TargetsProcessed  int // Attempted, including failures and skips
	TargetsSucceeded  int
}

// NewCrawlReport creates an empty report for a run
func NewCrawlReport(runID string) *CrawlReport {
	return &CrawlReport{
		RunID:        runID,
		Records:      make([]ContactRecord, 0),
		UniqueEmails: make(map[string]struct{}),
		UniquePhones: make(map[string]struct{}),
	}
}

// Merge appends a target's output. The target counts as processed whatever its outcome.
func (r *CrawlReport) Merge(res TargetResult) {
	r.TargetsProcessed++
	if res.Err == nil {
		r.TargetsSucceeded++
	}
	r.Records = append(r.Records, res.Records...)
	for _, rec := range res.Records {
		r.UniqueEmails[rec.Email] = struct{}{}
	}
	for p := range res.Phones {
		r.UniquePhones[p] = struct{}{}
	}
}

// CountsByTarget returns record counts per target name, sorted by name
func (r *CrawlReport) CountsByTarget() []TargetCount {
	counts := make(map[string]int)
	for _, rec := range r.Records {
		counts[rec.Target.Name]++
	}
	out := make([]TargetCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, TargetCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SampleEmails returns at most limit unique emails in sorted order
func (r *CrawlReport) SampleEmails(limit int) []string {
	all := make([]string, 0, len(r.UniqueEmails))
	for e := range r.UniqueEmails {
		all = append(all, e)
	}
	sort.Strings(all)
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// RunMetadata is written as YAML next to the report
type RunMetadata struct {
	RunID             string           `yaml:"run_id"`
	SiteKey           string           `yaml:"site_key"`
	RootURL           string           `yaml:"root_url"`
	Renderer          string           `yaml:"renderer"`
	Resumed           bool             `yaml:"resumed"`
	CrawlStartTime    time.Time        `yaml:"crawl_start_time"`
	CrawlEndTime      time.Time        `yaml:"crawl_end_time"`
	FinalState        RunState         `yaml:"final_state"`
	TargetsDiscovered int              `yaml:"targets_discovered"`
	TargetsProcessed  int              `yaml:"targets_processed"`
	TargetsSucceeded  int              `yaml:"targets_succeeded"`
	TotalRecords      int              `yaml:"total_records"`
	UniqueEmails      int              `yaml:"unique_emails"`
	UniquePhones      int              `yaml:"unique_phones"`
	Targets           []TargetMetadata `yaml:"targets"`
}

// TargetMetadata holds per-target outcome for the run metadata file
type TargetMetadata struct {
	Name      string       `yaml:"name"`
	URL       string       `yaml:"url"`
	Status    TargetStatus `yaml:"status"`
	ErrorType string       `yaml:"error_type,omitempty"`
	Emails    int          `yaml:"emails"`
	Phones    int          `yaml:"phones"`
	Cached    bool         `yaml:"cached,omitempty"`
}
