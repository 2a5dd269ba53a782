package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/LouYuanbo1/dirscraper/internal/domain/model"
)

// Columns 表头顺序固定
var Columns = []string{"Название", "Город", "Страна", "Адрес", "Телефоны", "Email", "Сайты", "Ссылка 2ГИС"}

const (
	sheetName = "Companies"
	listSep   = ", "
	colWidth  = 32
)

// utf8BOM 让 Excel 按 UTF-8 打开 CSV
const utf8BOM = "\uFEFF"

// Row 列表字段用 ", " 拼接
func Row(r model.Record) []string {
	return []string{
		r.Name,
		r.City,
		r.Country,
		r.Address,
		strings.Join(r.Phones, listSep),
		strings.Join(r.Emails, listSep),
		strings.Join(r.Websites, listSep),
		r.SourceURL,
	}
}

// Exporter 表格输出: 首选 xlsx,失败时在同一目录写同名 .csv
type Exporter struct {
	path    string
	written string
	logger  logrus.FieldLogger
}

func InitExporter(path string, logger logrus.FieldLogger) *Exporter {
	if path == "" {
		path = "companies.xlsx"
	}
	return &Exporter{path: path, logger: logger}
}

func (e *Exporter) Name() string {
	return "spreadsheet"
}

// Written 最近一次实际写出的文件
func (e *Exporter) Written() string {
	return e.written
}

func (e *Exporter) Write(ctx context.Context, jobID string, records []model.Record) error {
	if strings.EqualFold(filepath.Ext(e.path), ".csv") {
		if err := WriteCSV(e.path, records); err != nil {
			return err
		}
		e.written = e.path
		return nil
	}

	xlsxErr := WriteXLSX(e.path, records)
	if xlsxErr == nil {
		e.written = e.path
		return nil
	}
	fallback := strings.TrimSuffix(e.path, filepath.Ext(e.path)) + ".csv"
	e.logger.WithError(xlsxErr).WithFields(logrus.Fields{"job_id": jobID, "fallback": fallback}).Warn("xlsx write failed, falling back to csv")
	if err := WriteCSV(fallback, records); err != nil {
		return errors.Join(xlsxErr, err)
	}
	e.written = fallback
	return nil
}

func WriteXLSX(path string, records []model.Record) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return err
	}

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return err
	}
	if err := sw.SetColWidth(1, len(Columns), colWidth); err != nil {
		return err
	}
	if err := sw.SetRow("A1", toCells(Columns)); err != nil {
		return err
	}
	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, toCells(Row(r))); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return f.SaveAs(path)
}

func WriteCSV(path string, records []model.Record) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if _, err := file.WriteString(utf8BOM); err != nil {
		return err
	}
	w := csv.NewWriter(file)
	if err := w.Write(Columns); err != nil {
		return err
	}
	for _, r := range records {
		if err := w.Write(Row(r)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func toCells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
