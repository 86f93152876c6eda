// Package export serializes roster snapshots for the teacher view.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/NelyubinaIV/Ogegotovo/internal/progress"
)

const (
	defaultNickname = "Не указан"
	timeLayout      = "02.01.2006 15:04"
)

var csvHeader = []string{"Токен", "Ник", "Конфеты", "Уроков завершено", "Последняя активность"}

// FileName returns the download name for an export produced at the given time.
func FileName(ext string, now time.Time) string {
	return fmt.Sprintf("oge-students-%s.%s", now.Format("2006-01-02"), ext)
}

// JSON renders the roster as a pretty-printed array of full records.
func JSON(students []*progress.Record) ([]byte, error) {
	data, err := json.MarshalIndent(students, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal roster: %w", err)
	}
	return data, nil
}

// CSV renders the roster as UTF-8 CSV, one row per student after the header.
func CSV(students []*progress.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, s := range students {
		if err := w.Write(csvRow(s)); err != nil {
			return nil, fmt.Errorf("write csv row for %s: %w", s.Token, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// CSVWindows1251 renders the roster as windows-1251 CSV, the encoding
// Excel expects for Russian text on school machines.
func CSVWindows1251(students []*progress.Record) ([]byte, error) {
	utf8Data, err := CSV(students)
	if err != nil {
		return nil, err
	}
	data, err := charmap.Windows1251.NewEncoder().Bytes(utf8Data)
	if err != nil {
		return nil, fmt.Errorf("encode csv to windows-1251: %w", err)
	}
	return data, nil
}

// XLSX renders the roster as a single-sheet spreadsheet.
func XLSX(students []*progress.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for col, title := range csvHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return nil, fmt.Errorf("set header cell: %w", err)
		}
	}

	for i, s := range students {
		row := []any{
			s.Token,
			nicknameOrDefault(s),
			s.Candies,
			len(s.LessonsCompleted),
			s.LastActive.Format(timeLayout),
		}
		for col, value := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, fmt.Errorf("cell for %s: %w", s.Token, err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, fmt.Errorf("set cell for %s: %w", s.Token, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func csvRow(s *progress.Record) []string {
	return []string{
		s.Token,
		nicknameOrDefault(s),
		fmt.Sprintf("%d", s.Candies),
		fmt.Sprintf("%d", len(s.LessonsCompleted)),
		s.LastActive.Format(timeLayout),
	}
}

func nicknameOrDefault(s *progress.Record) string {
	if s.Nickname == "" {
		return defaultNickname
	}
	return s.Nickname
}
