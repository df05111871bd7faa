package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/berginj/glovebrand/internal/branding"
)

// OutputWriter persists the artifact set for one job under a deterministic
// jobs/{id}/ prefix. Re-running a write overwrites the same paths, which
// keeps checkpoint replay safe.
type OutputWriter struct {
	blobs branding.BlobStore
}

// NewOutputWriter builds an output writer on the given blob store.
func NewOutputWriter(blobs branding.BlobStore) *OutputWriter {
	return &OutputWriter{blobs: blobs}
}

// WriteAll uploads palette.json, glove_design.json, proposal.md, and
// crawl_report.json (with the logo decision embedded), returning the
// locations of everything written plus any wizard artifacts carried in.
func (w *OutputWriter) WriteAll(
	ctx context.Context,
	jobID string,
	report branding.CrawlReport,
	logo branding.LogoScore,
	pal branding.Palette,
	design branding.Design,
	wres *branding.WizardResult,
) (branding.Outputs, error) {
	var outputs branding.Outputs
	if logo.BlobPath != "" {
		outputs.Logo = &branding.ArtifactLocation{Path: logo.BlobPath, URL: logo.BlobURL}
	}

	report.LogoDecision = &branding.LogoDecision{
		SelectedURL: logo.URL,
		Score:       logo.Score,
		Reasons:     logo.Reasons,
		Analysis:    logo.Analysis,
	}

	loc, err := w.putJSON(ctx, jobID, "palette.json", pal)
	if err != nil {
		return outputs, err
	}
	outputs.Palette = loc

	loc, err = w.putJSON(ctx, jobID, "glove_design.json", design)
	if err != nil {
		return outputs, err
	}
	outputs.Design = loc

	proposal := BuildProposal(design, logo, pal, report, wres)
	proposalLoc, err := w.blobs.Put(ctx, jobPath(jobID, "proposal.md"), "text/markdown", []byte(proposal))
	if err != nil {
		return outputs, branding.NewError(branding.KindInfrastructure, "write-outputs", "upload proposal.md", err)
	}
	outputs.Proposal = &proposalLoc

	loc, err = w.putJSON(ctx, jobID, "crawl_report.json", report)
	if err != nil {
		return outputs, err
	}
	outputs.CrawlReport = loc

	if wres != nil {
		outputs.WizardSchema = wres.SchemaSnapshot
		outputs.ConfiguredImage = wres.ConfiguredImage
	}
	return outputs, nil
}

func (w *OutputWriter) putJSON(ctx context.Context, jobID, name string, v any) (*branding.ArtifactLocation, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, branding.NewError(branding.KindInfrastructure, "write-outputs", "encode "+name, err)
	}
	loc, err := w.blobs.Put(ctx, jobPath(jobID, name), "application/json", data)
	if err != nil {
		return nil, branding.NewError(branding.KindInfrastructure, "write-outputs", "upload "+name, err)
	}
	return &loc, nil
}

func jobPath(jobID, name string) string {
	return fmt.Sprintf("jobs/%s/%s", jobID, name)
}
