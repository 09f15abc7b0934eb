// Package export writes evaluations to spreadsheet reports.
package export

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spigell/resume-screener/internal/screening"

	"github.com/xuri/excelize/v2"
)

const (
	EvaluationsSheet = "Evaluations"
	EvidenceSheet    = "Evidence"
)

var (
	evaluationHeader = []any{
		"Evaluation ID", "Job ID", "Resume ID", "Score", "Seniority", "Status",
		"Matched Skills", "Missing Skills", "Summary", "Notes", "Provider", "Created",
	}
	evidenceHeader = []any{"Evaluation ID", "Skill", "Snippet"}
)

// Write renders evals as an xlsx workbook into w.
func Write(w io.Writer, evals []*screening.Evaluation) error {
	f, err := build(evals)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// WriteFile saves the workbook to path, adding the .xlsx extension if missing.
func WriteFile(path string, evals []*screening.Evaluation) (string, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		path += ".xlsx"
	}
	path = filepath.Clean(path)

	f, err := build(evals)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return path, nil
}

func build(evals []*screening.Evaluation) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", EvaluationsSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(EvidenceSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create evidence sheet: %w", err)
	}

	if err := writeEvaluations(f, evals); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("evaluations sheet: %w", err)
	}
	if err := writeEvidence(f, evals); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("evidence sheet: %w", err)
	}

	return f, nil
}

func writeEvaluations(f *excelize.File, evals []*screening.Evaluation) error {
	if err := writeHeader(f, EvaluationsSheet, evaluationHeader); err != nil {
		return err
	}

	for i, e := range evals {
		row := []any{
			e.ID, e.JobID, e.ResumeID, e.Score, e.Seniority, string(e.Status),
			strings.Join(e.MatchedSkills, ", "), strings.Join(e.MissingSkills, ", "),
			e.Summary, e.Notes, e.Provider, e.CreatedAt.Format(time.RFC3339),
		}
		if err := setRow(f, EvaluationsSheet, i+2, row); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(EvaluationsSheet, "A", "C", 38)
	_ = f.SetColWidth(EvaluationsSheet, "G", "I", 45)
	return freezeHeader(f, EvaluationsSheet)
}

func writeEvidence(f *excelize.File, evals []*screening.Evaluation) error {
	if err := writeHeader(f, EvidenceSheet, evidenceHeader); err != nil {
		return err
	}

	row := 2
	for _, e := range evals {
		for _, ev := range e.Evidence {
			for _, snippet := range ev.Snippets {
				if err := setRow(f, EvidenceSheet, row, []any{e.ID, ev.Skill, snippet}); err != nil {
					return err
				}
				row++
			}
		}
	}

	_ = f.SetColWidth(EvidenceSheet, "A", "A", 38)
	_ = f.SetColWidth(EvidenceSheet, "C", "C", 100)
	return freezeHeader(f, EvidenceSheet)
}

func writeHeader(f *excelize.File, sheet string, header []any) error {
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("set row %d: %w", row, err)
	}
	return nil
}

func freezeHeader(f *excelize.File, sheet string) error {
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
