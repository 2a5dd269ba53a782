package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/LouYuanbo1/dirscraper/internal/domain/model"
	"github.com/LouYuanbo1/dirscraper/internal/infra/logging"
)

var records = []model.Record{
	{
		Name:      "Кофемания",
		City:      "Москва",
		Country:   "Россия",
		Address:   "Большая Никитская, 13/6",
		Phones:    []string{"+74951234567", "+79261234567"},
		Emails:    []string{"info@coffeemania.ru"},
		Websites:  []string{"https://coffeemania.ru/"},
		SourceURL: "https://2gis.ru/moscow/firm/1",
	},
	{Name: "Аптека", City: "Москва", Country: "Россия", SourceURL: "https://2gis.ru/moscow/firm/2"},
}

func TestRow(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{
		"Кофемания", "Москва", "Россия", "Большая Никитская, 13/6",
		"+74951234567, +79261234567", "info@coffeemania.ru", "https://coffeemania.ru/", "https://2gis.ru/moscow/firm/1",
	}, Row(records[0]))
	assert.Len(t, Row(model.Record{}), len(Columns))
}

func TestExporterXLSX(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "companies.xlsx")
	e := InitExporter(path, logging.Discard())
	require.NoError(t, e.Write(context.Background(), "job", records))
	assert.Equal(t, path, e.Written())

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, Row(records[0]), rows[1])
	assert.Equal(t, "Аптека", rows[2][0])
}

func TestExporterFallsBackToCSV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// 同名目录让 xlsx 写入失败
	path := filepath.Join(dir, "companies.xlsx")
	require.NoError(t, os.Mkdir(path, 0o755))

	e := InitExporter(path, logging.Discard())
	require.NoError(t, e.Write(context.Background(), "job", records))
	assert.Equal(t, filepath.Join(dir, "companies.csv"), e.Written())

	rows := readCSV(t, e.Written())
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, Row(records[1]), rows[2])
}

func TestExporterCSVPath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.csv")
	e := InitExporter(path, logging.Discard())
	require.NoError(t, e.Write(context.Background(), "job", records))
	assert.Len(t, readCSV(t, path), 3)
}

func TestExporterBothFormatsFail(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing", "companies.xlsx")
	e := InitExporter(path, logging.Discard())
	assert.Error(t, e.Write(context.Background(), "job", records))
	assert.Empty(t, e.Written())
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))
	rows, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(data), utf8BOM))).ReadAll()
	require.NoError(t, err)
	return rows
}
