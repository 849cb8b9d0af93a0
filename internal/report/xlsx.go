// Package report exports consensus state as spreadsheet files.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/pimworks/golden-cli/internal/model"
)

// WriteConsensusXLSX renders one product's consensus detail as a workbook
// with sources, results, conflicts, and provenance sheets.
func WriteConsensusXLSX(detail model.ConsensusDetail, w io.Writer) error {
	file := xlsx.NewFile()

	if err := addSourcesSheet(file, detail.Sources); err != nil {
		return err
	}
	if err := addResultsSheet(file, detail.Results); err != nil {
		return err
	}
	if err := addConflictsSheet(file, detail.Conflicts); err != nil {
		return err
	}
	if err := addProvenanceSheet(file, detail.Provenance); err != nil {
		return err
	}

	return eris.Wrap(file.Write(w), "report: write workbook")
}

func addSourcesSheet(file *xlsx.File, sources []model.ConsensusSource) error {
	sheet, err := file.AddSheet("Sources")
	if err != nil {
		return eris.Wrap(err, "report: add sources sheet")
	}
	addHeader(sheet, "Source", "Trust Score", "Similarity", "Status")
	for _, s := range sources {
		row := sheet.AddRow()
		row.AddCell().Value = s.SourceName
		row.AddCell().Value = formatFloat(s.TrustScore)
		row.AddCell().Value = formatFloat(s.SimilarityScore)
		row.AddCell().Value = s.Status
	}
	return nil
}

func addResultsSheet(file *xlsx.File, results []model.ConsensusResult) error {
	sheet, err := file.AddSheet("Results")
	if err != nil {
		return eris.Wrap(err, "report: add results sheet")
	}
	addHeader(sheet, "Attribute", "Value", "Sources", "Confidence")
	for _, r := range results {
		row := sheet.AddRow()
		row.AddCell().Value = r.Attribute
		row.AddCell().Value = r.Value
		row.AddCell().Value = fmt.Sprint(r.SourcesCount)
		row.AddCell().Value = formatFloat(r.Confidence)
	}
	return nil
}

func addConflictsSheet(file *xlsx.File, conflicts []model.ConflictRecord) error {
	sheet, err := file.AddSheet("Conflicts")
	if err != nil {
		return eris.Wrap(err, "report: add conflicts sheet")
	}
	addHeader(sheet, "Attribute", "Reason", "Source", "Value", "Trust", "Similarity")
	for _, c := range conflicts {
		for _, v := range c.Values {
			row := sheet.AddRow()
			row.AddCell().Value = c.AttributeName
			row.AddCell().Value = c.Reason
			row.AddCell().Value = v.SourceName
			row.AddCell().Value = fmt.Sprint(v.Value)
			row.AddCell().Value = formatFloat(v.TrustScore)
			row.AddCell().Value = formatFloat(v.SimilarityScore)
		}
	}
	return nil
}

func addProvenanceSheet(file *xlsx.File, provenance []model.Provenance) error {
	sheet, err := file.AddSheet("Provenance")
	if err != nil {
		return eris.Wrap(err, "report: add provenance sheet")
	}
	addHeader(sheet, "Attribute", "Value", "Winning Source", "Weight", "Conflict", "Resolved At")
	for _, p := range provenance {
		row := sheet.AddRow()
		row.AddCell().Value = p.AttributeName
		row.AddCell().Value = fmt.Sprint(p.Value)
		row.AddCell().Value = p.SourceName
		row.AddCell().Value = formatFloat(p.Weight)
		row.AddCell().Value = fmt.Sprint(p.ConflictDetected)
		row.AddCell().Value = p.ResolvedAt.UTC().Format(time.RFC3339)
	}
	return nil
}

func addHeader(sheet *xlsx.Sheet, titles ...string) {
	row := sheet.AddRow()
	for _, title := range titles {
		row.AddCell().Value = title
	}
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
