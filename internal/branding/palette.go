package branding

// PaletteColor is one extracted color with its evidentiary strength.
type PaletteColor struct {
	Hex        string   `json:"hex"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence"`
}

// Palette is the four named slots derived for a job, plus the raw ranked
// color pool. Produced once per job and immutable thereafter.
type Palette struct {
	Primary   PaletteColor   `json:"primary"`
	Secondary PaletteColor   `json:"secondary"`
	Accent    PaletteColor   `json:"accent"`
	Neutral   PaletteColor   `json:"neutral"`
	Raw       []PaletteColor `json:"raw"`
}

// Slot names a palette position for wizard field mapping.
type Slot string

// Palette slots.
const (
	SlotPrimary   Slot = "primary"
	SlotSecondary Slot = "secondary"
	SlotAccent    Slot = "accent"
	SlotNeutral   Slot = "neutral"
)

// Color returns the palette color occupying the slot.
func (p Palette) Color(slot Slot) PaletteColor {
	switch slot {
	case SlotSecondary:
		return p.Secondary
	case SlotAccent:
		return p.Accent
	case SlotNeutral:
		return p.Neutral
	default:
		return p.Primary
	}
}

// Design is the deterministic colorway proposal generated from a palette.
type Design struct {
	JobID    string          `json:"job_id"`
	TeamURL  string          `json:"team_url"`
	LogoURL  string          `json:"logo_url"`
	LogoPath string          `json:"logo_blob_path"`
	Palette  Palette         `json:"palette"`
	Variants []DesignVariant `json:"variants"`
}

// DesignVariant maps glove components to hex colors for one colorway.
type DesignVariant struct {
	ID         string            `json:"id"`
	Components map[string]string `json:"components"`
	Notes      []string          `json:"notes"`
}

// WizardResult reports the outcome of the third-party wizard automation.
type WizardResult struct {
	SchemaSnapshot    *ArtifactLocation `json:"schema_snapshot,omitempty"`
	ConfiguredImage   *ArtifactLocation `json:"configured_image,omitempty"`
	Warnings          []string          `json:"warnings"`
	AutofillAttempted bool              `json:"autofill_attempted"`
	AutofillSucceeded bool              `json:"autofill_succeeded"`
	ManualSteps       []string          `json:"manual_steps,omitempty"`
	MappingConfidence float64           `json:"mapping_confidence,omitempty"`
}
