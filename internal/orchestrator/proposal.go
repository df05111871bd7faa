package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/berginj/glovebrand/internal/branding"
)

// BuildProposal composes the human-readable proposal.md artifact from every
// prior pipeline output. The wizard result is optional; when automation did
// not fully succeed the manual fallback steps are included.
func BuildProposal(design branding.Design, logo branding.LogoScore, pal branding.Palette, report branding.CrawlReport, wres *branding.WizardResult) string {
	lines := []string{
		"# Glove Design Proposal",
		"",
		fmt.Sprintf("**Team URL:** %s", design.TeamURL),
		fmt.Sprintf("**Logo Candidate:** %s", logo.URL),
		fmt.Sprintf("**Logo Evidence:** %s", strings.Join(logo.Reasons, "; ")),
		"",
		"## Palette",
		paletteLine("Primary", pal.Primary),
		paletteLine("Secondary", pal.Secondary),
		paletteLine("Accent", pal.Accent),
		paletteLine("Neutral", pal.Neutral),
		"",
		"## Variants",
	}

	for _, variant := range design.Variants {
		components, _ := json.Marshal(variant.Components)
		lines = append(lines,
			fmt.Sprintf("### Variant %s", variant.ID),
			fmt.Sprintf("- Components: %s", components),
			fmt.Sprintf("- Notes: %s", strings.Join(variant.Notes, "; ")),
			"")
	}

	if len(report.Notes) > 0 {
		lines = append(lines, "## Crawl Notes")
		for _, note := range report.Notes {
			lines = append(lines, "- "+note)
		}
	}

	if wres != nil && wres.AutofillAttempted {
		lines = append(lines, "", "## Wizard Autofill",
			fmt.Sprintf("- Attempted: %s", yesNo(wres.AutofillAttempted)),
			fmt.Sprintf("- Succeeded: %s", yesNo(wres.AutofillSucceeded)))
		if len(wres.Warnings) > 0 {
			lines = append(lines, "### Warnings")
			for _, warning := range wres.Warnings {
				lines = append(lines, "- "+warning)
			}
		}
		if !wres.AutofillSucceeded {
			steps := wres.ManualSteps
			if len(steps) == 0 {
				steps = DefaultManualSteps()
			}
			lines = append(lines, "### Manual Steps")
			for _, step := range steps {
				lines = append(lines, "- "+step)
			}
		}
	}

	return strings.Join(lines, "\n")
}

// DefaultManualSteps is the generic fallback when the wizard produced no
// field-specific instructions.
func DefaultManualSteps() []string {
	return []string{
		"Open https://bc2gloves.com/cart and start the glove wizard.",
		"Select glove model and size, then choose colors matching the proposal palette.",
		"Upload the logo from the job artifacts.",
		"Review the preview and adjust contrast if any panel colors blend together.",
		"Save screenshots of the configuration for approval.",
	}
}

func paletteLine(slot string, c branding.PaletteColor) string {
	return fmt.Sprintf("- %s: %s (%s)", slot, c.Hex, strings.Join(c.Evidence, ", "))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
