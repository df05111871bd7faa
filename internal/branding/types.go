// Package branding defines core types shared across the pipeline subsystems.
package branding

import "time"

// Mode selects how far the pipeline runs for a job.
type Mode string

// Job modes accepted at submission.
const (
	ModeProposal Mode = "proposal"
	ModeAutofill Mode = "autofill"
)

// Valid reports whether the mode is one of the accepted values.
func (m Mode) Valid() bool {
	return m == ModeProposal || m == ModeAutofill
}

// Stage is a named checkpoint in the job state machine.
type Stage string

// Stage values persisted in the job store. Happy path runs top to bottom;
// any stage may transition directly to failed or canceled.
const (
	StageReceived        Stage = "received"
	StageQueued          Stage = "queued"
	StageValidated       Stage = "validated"
	StageCrawled         Stage = "crawled"
	StageLogoSelected    Stage = "logo_selected"
	StageColorsExtracted Stage = "colors_extracted"
	StageDesignGenerated Stage = "design_generated"
	StageWizardAttempted Stage = "wizard_attempted"
	StageCompleted       Stage = "completed"
	StageFailed          Stage = "failed"
	StageCanceled        Stage = "canceled"
)

// Terminal reports whether the stage ends the job lifecycle.
func (s Stage) Terminal() bool {
	switch s {
	case StageCompleted, StageFailed, StageCanceled:
		return true
	default:
		return false
	}
}

// Status is the coarse job state exposed by the status endpoint.
type Status string

// Status values derived from the stage.
const (
	StatusRunning   Status = "Running"
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
)

// StatusOf maps a stage to the user-facing status.
func StatusOf(stage Stage) Status {
	switch stage {
	case StageCompleted:
		return StatusSucceeded
	case StageFailed, StageCanceled:
		return StatusFailed
	default:
		return StatusRunning
	}
}

// ArtifactLocation points at one persisted artifact in blob storage.
type ArtifactLocation struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// Outputs holds the locations of artifacts produced so far. Fields are
// append-only: once set they are never cleared by later checkpoints.
type Outputs struct {
	Logo            *ArtifactLocation `json:"logo,omitempty"`
	Palette         *ArtifactLocation `json:"palette,omitempty"`
	Design          *ArtifactLocation `json:"design,omitempty"`
	Proposal        *ArtifactLocation `json:"proposal,omitempty"`
	CrawlReport     *ArtifactLocation `json:"crawl_report,omitempty"`
	WizardSchema    *ArtifactLocation `json:"wizard_schema,omitempty"`
	ConfiguredImage *ArtifactLocation `json:"configured_image,omitempty"`
}

// Merge copies every set field of other into o without clearing anything.
func (o *Outputs) Merge(other Outputs) {
	if other.Logo != nil {
		o.Logo = other.Logo
	}
	if other.Palette != nil {
		o.Palette = other.Palette
	}
	if other.Design != nil {
		o.Design = other.Design
	}
	if other.Proposal != nil {
		o.Proposal = other.Proposal
	}
	if other.CrawlReport != nil {
		o.CrawlReport = other.CrawlReport
	}
	if other.WizardSchema != nil {
		o.WizardSchema = other.WizardSchema
	}
	if other.ConfiguredImage != nil {
		o.ConfiguredImage = other.ConfiguredImage
	}
}

// Job is the durable record tracked for each submission.
type Job struct {
	ID                string              `json:"job_id"`
	TeamURL           string              `json:"team_url"`
	Mode              Mode                `json:"mode"`
	InstanceID        string              `json:"instance_id,omitempty"`
	Stage             Stage               `json:"stage"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
	StageTimestamps   map[Stage]time.Time `json:"stage_timestamps,omitempty"`
	RetryCount        int                 `json:"retry_count,omitempty"`
	LastRetryAt       *time.Time          `json:"last_retry_at,omitempty"`
	Error             string              `json:"error,omitempty"`
	ErrorDetails      string              `json:"error_details,omitempty"`
	AutofillAttempted bool                `json:"autofill_attempted,omitempty"`
	AutofillSucceeded bool                `json:"autofill_succeeded,omitempty"`
	WizardWarnings    []string            `json:"wizard_warnings,omitempty"`
	Outputs           Outputs             `json:"outputs"`
}

// StageUpdate carries the optional fields merged into a job by UpdateStage.
// Nil pointers mean "leave the stored value alone".
type StageUpdate struct {
	Outputs           *Outputs
	Error             string
	ErrorDetails      string
	RetryCount        *int
	LastRetryAt       *time.Time
	AutofillAttempted *bool
	AutofillSucceeded *bool
	WizardWarnings    []string
	InstanceID        string
}

// Message is the queue payload that wakes the coordinator for one job.
type Message struct {
	JobID   string `json:"job_id"`
	TeamURL string `json:"team_url"`
	Mode    Mode   `json:"mode"`
	Attempt int    `json:"attempt,omitempty"`
}

// DeadLetter describes one message parked on the dead-letter subqueue.
type DeadLetter struct {
	Message       Message   `json:"message"`
	MessageID     string    `json:"message_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	DeliveryCount int       `json:"delivery_count,omitempty"`
	EnqueuedAt    time.Time `json:"enqueued_at,omitempty"`
}

// QueueStats is the best-effort depth report for the debug surface.
// Counts below zero mean the provider cannot report them.
type QueueStats struct {
	Provider    string `json:"provider"`
	Active      int    `json:"active"`
	DeadLetters int    `json:"dead_letters"`
}
