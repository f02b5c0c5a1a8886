// Package registry parses the case registry: a directory tree of workbooks,
// one case per row, from which a phone-number index is built on every
// matching pass.
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
	"record-sync/pkg/phone"
)

// Column layout of every registry workbook (zero based).
const (
	colCaseId    = 0
	colPrimary   = 2
	colSecondary = 4
	colContact1  = 5
	colContact2  = 6
	colProduct   = 8

	productColumn = "I"
	firstDataRow  = 2
)

// contactPattern finds numbers embedded as _<digits>_ in the free-text
// contact columns.
var contactPattern = regexp.MustCompile(`_\d+_`)

type CaseRecord struct {
	CaseId      string
	ProductName string
	Phones      []string
	File        string
	Row         int
}

func (c *CaseRecord) HasPhone(number string) bool {
	for _, p := range c.Phones {
		if p == number {
			return true
		}
	}
	return false
}

// Warning reports a registry row that was left out of the match set.
type Warning struct {
	File string
	Row  int
}

func (w Warning) String() string {
	return fmt.Sprintf("case registry %s: row %d has a malformed product cell (empty or formula), row skipped", w.File, w.Row)
}

// Registry keeps cases in enumeration order: sub-directory name, then file
// name, then row.
type Registry struct {
	Cases []*CaseRecord
}

// FirstMatch returns the first case listing number.
func (r *Registry) FirstMatch(number string) (*CaseRecord, bool) {
	if number == "" {
		return nil, false
	}
	for _, c := range r.Cases {
		if c.HasPhone(number) {
			return c, true
		}
	}
	return nil, false
}

type Loader struct {
	Root string
}

func NewLoader(root string) *Loader {
	return &Loader{Root: root}
}

// Load walks Root/<dir>/*.xlsx. Lock files left by spreadsheet editors
// ("~$...") are ignored.
func (l *Loader) Load(ctx context.Context) (*Registry, []Warning, error) {
	dirs, err := os.ReadDir(l.Root)
	if err != nil {
		return nil, nil, fmt.Errorf("read registry root: %w", err)
	}

	reg := &Registry{}
	var warnings []Warning
	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		dirPath := filepath.Join(l.Root, dir.Name())
		files, err := os.ReadDir(dirPath)
		if err != nil {
			return nil, nil, fmt.Errorf("read registry dir %s: %w", dirPath, err)
		}
		for _, file := range files {
			name := file.Name()
			if file.IsDir() || filepath.Ext(name) != ".xlsx" || strings.Contains(name, "~$") {
				continue
			}
			cases, fileWarnings, err := parseWorkbook(filepath.Join(dirPath, name), name)
			if err != nil {
				return nil, nil, err
			}
			zerolog.Ctx(ctx).Debug().Str("file", name).Int("cases", len(cases)).Msg("registry workbook parsed")
			reg.Cases = append(reg.Cases, cases...)
			warnings = append(warnings, fileWarnings...)
		}
	}

	zerolog.Ctx(ctx).Info().Int("cases", len(reg.Cases)).Int("warnings", len(warnings)).Msg("case registry loaded")
	return reg, warnings, nil
}

func parseWorkbook(path, name string) ([]*CaseRecord, []Warning, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, fmt.Errorf("read workbook %s: %w", path, err)
	}

	var cases []*CaseRecord
	var warnings []Warning
	for i := firstDataRow - 1; i < len(rows); i++ {
		row := rows[i]
		rowNum := i + 1
		caseId := cell(row, colCaseId)
		if caseId == "" {
			continue
		}

		product := cell(row, colProduct)
		formula, _ := f.GetCellFormula(sheet, productColumn+strconv.Itoa(rowNum))
		if strings.TrimSpace(product) == "" || formula != "" || strings.Contains(product, "=") {
			warnings = append(warnings, Warning{File: name, Row: rowNum})
			continue
		}

		cases = append(cases, &CaseRecord{
			CaseId:      strings.NewReplacer(" ", "", "\n", "").Replace(caseId),
			ProductName: strings.ReplaceAll(product, "\n", ""),
			Phones:      rowPhones(row),
			File:        name,
			Row:         rowNum,
		})
	}
	return cases, warnings, nil
}

func rowPhones(row []string) []string {
	var phones []string
	for _, col := range []int{colPrimary, colSecondary} {
		if v := cell(row, col); v != "" {
			phones = append(phones, phone.Normalize(v))
		}
	}
	for _, col := range []int{colContact1, colContact2} {
		v := cell(row, col)
		if len(v) <= 5 {
			continue
		}
		for _, m := range contactPattern.FindAllString(v, -1) {
			phones = append(phones, phone.Normalize(strings.Trim(m, "_")))
		}
	}
	return phones
}

func cell(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return row[col]
}
