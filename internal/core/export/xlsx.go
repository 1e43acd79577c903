// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package export

import (
	"bytes"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet    = "Analysis"
	metadataSheet   = "Video"
	transcriptSheet = "Transcript"
)

// XLSXRenderer writes a workbook with one sheet per report part.
type XLSXRenderer struct{}

func (XLSXRenderer) Render(doc Document) (_ []byte, err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if err = f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	wrap, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err != nil {
		return nil, err
	}

	rows := [][]any{{"Section", "Score", "Description", "Elements"}}
	for _, s := range doc.Sections {
		rows = append(rows, []any{s.Title, s.ScorePercent(), s.Description, strings.Join(s.Elements, "\n")})
	}
	if err = writeRows(f, summarySheet, rows, header, wrap); err != nil {
		return nil, err
	}
	if err = f.SetColWidth(summarySheet, "C", "D", 60); err != nil {
		return nil, err
	}

	if len(doc.Metadata) > 0 {
		if _, err = f.NewSheet(metadataSheet); err != nil {
			return nil, err
		}
		rows = [][]any{{"Field", "Value"}}
		for _, m := range doc.Metadata {
			rows = append(rows, []any{m.Label, m.Value})
		}
		if err = writeRows(f, metadataSheet, rows, header, wrap); err != nil {
			return nil, err
		}
		if err = f.SetColWidth(metadataSheet, "B", "B", 60); err != nil {
			return nil, err
		}
	}

	if doc.Transcript != "" || len(doc.Translations) > 0 {
		if _, err = f.NewSheet(transcriptSheet); err != nil {
			return nil, err
		}
		lang := doc.Language
		if lang == "" {
			lang = "original"
		}
		rows = [][]any{{"Language", "Text"}, {lang, doc.Transcript}}
		for _, t := range doc.Translations {
			rows = append(rows, []any{t.Code, t.Text})
		}
		if err = writeRows(f, transcriptSheet, rows, header, wrap); err != nil {
			return nil, err
		}
		if err = f.SetColWidth(transcriptSheet, "B", "B", 100); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err = f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeRows writes rows starting at A1. The first row gets the header style.
func writeRows(f *excelize.File, sheet string, rows [][]any, header, body int) error {
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
		if len(row) == 0 {
			continue
		}
		first, _ := excelize.CoordinatesToCellName(1, r+1)
		last, _ := excelize.CoordinatesToCellName(len(row), r+1)
		style := body
		if r == 0 {
			style = header
		}
		if err := f.SetCellStyle(sheet, first, last, style); err != nil {
			return err
		}
	}
	return nil
}
