// Package export renders the entity store as an XLSX workbook, one row per
// entity. It is safe to call repeatedly: a partial export mid-crawl simply
// rewrites the file.
package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/buildsheet/harvester/internal/catalog"
)

const sheetName = "Companies"

var columns = []string{
	"Name", "Address", "City", "State/Province", "Postal Code",
	"Phone", "Fax", "Email", "Website",
	"Contact Name", "Contact Phone", "Contact Email",
	"Categories", "Description",
	"Specs", "BIM", "CAD", "CEU", "Catalog", "Data Sheets",
	"Gallery", "Green", "Selector", "Literature",
	"Source URL", "Source", "Detailed",
}

// Writer exports to a fixed path.
type Writer struct {
	path string
}

func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

func (w *Writer) Path() string { return w.path }

// Export writes one row per entity plus a header row. tag is the constant
// provenance label for the source site.
func (w *Writer) Export(entities []*catalog.Entity, tag string) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := setRow(f, 1, header); err != nil {
		return err
	}

	for i, e := range entities {
		if err := setRow(f, i+2, entityRow(e, tag)); err != nil {
			return err
		}
	}

	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("row %d: %w", row, err)
	}
	if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func entityRow(e *catalog.Entity, tag string) []interface{} {
	return []interface{}{
		e.Name, e.Address, e.City, e.Region, e.PostalCode,
		e.Phone, e.Fax, e.Email, e.Website,
		e.Contact.Name, e.Contact.Phone, e.Contact.Email,
		strings.Join(e.Tags, "; "), e.Description,
		yesNo(e.Content.Spec), yesNo(e.Content.BIM), yesNo(e.Content.CAD),
		yesNo(e.Content.CEU), yesNo(e.Content.Catalog), yesNo(e.Content.DataSheet),
		yesNo(e.Content.Gallery), yesNo(e.Content.Green), yesNo(e.Content.Selector),
		yesNo(e.Content.Literature),
		e.SourceURL, tag, yesNo(e.Detailed),
	}
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
