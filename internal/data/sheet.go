package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"multicarrier-planner/internal/model"
)

// sheet is one CSV table with a normalized header.
type sheet struct {
	table  string
	header []string
	cols   map[string]int
	rows   [][]string
	// line numbers of rows, 1-based with the header on line 1
	lines []int
}

// readSheet loads dir/name. A missing file returns (nil, nil).
func readSheet(dir, name string) (*sheet, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseSheet(strings.TrimSuffix(name, ".csv"), f)
}

func parseSheet(table string, r io.Reader) (*sheet, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &sheet{table: table, cols: map[string]int{}}, nil
	}
	if err != nil {
		return nil, &model.SchemaError{Table: table, Reason: err.Error()}
	}
	s := &sheet{table: table, cols: map[string]int{}}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		s.header = append(s.header, h)
		if _, dup := s.cols[h]; !dup {
			s.cols[h] = i
		}
	}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, &model.SchemaError{Table: table, Row: line, Reason: err.Error()}
		}
		if blank(rec) {
			continue
		}
		s.rows = append(s.rows, rec)
		s.lines = append(s.lines, line)
	}
	return s, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// col returns the index of the first alias present in the header, or -1.
func (s *sheet) col(aliases ...string) int {
	for _, a := range aliases {
		if i, ok := s.cols[a]; ok {
			return i
		}
	}
	return -1
}

// require resolves one column per alias group or reports the first group
// with no match.
func (s *sheet) require(groups ...[]string) ([]int, error) {
	out := make([]int, len(groups))
	for g, aliases := range groups {
		if out[g] = s.col(aliases...); out[g] < 0 {
			return nil, &model.SchemaError{Table: s.table, Field: aliases[0], Reason: "required column missing"}
		}
	}
	return out, nil
}

func (s *sheet) str(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// num parses a numeric cell; an empty or absent cell is 0.
func (s *sheet) num(i int, col int) (float64, error) {
	v, _, err := s.optNum(i, col)
	return v, err
}

func (s *sheet) optNum(i int, col int) (float64, bool, error) {
	raw := s.str(s.rows[i], col)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, &model.SchemaError{Table: s.table, Row: s.lines[i], Field: s.header[col], Reason: fmt.Sprintf("%q is not a number", raw)}
	}
	return v, true, nil
}

func (s *sheet) flag(i int, col int) (bool, error) {
	switch raw := strings.ToLower(s.str(s.rows[i], col)); raw {
	case "", "0", "0.0", "false", "no", "n":
		return false, nil
	case "1", "1.0", "true", "yes", "y":
		return true, nil
	default:
		return false, &model.SchemaError{Table: s.table, Row: s.lines[i], Field: s.header[col], Reason: fmt.Sprintf("%q is not a flag", raw)}
	}
}

// year renders integer-valued year cells without a fraction ("2030.0" -> "2030").
func (s *sheet) year(i int, col int) string {
	raw := s.str(s.rows[i], col)
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return raw
}

// hourColumns lists the columns named by an integer, ordered numerically.
func (s *sheet) hourColumns() []int {
	type hc struct{ n, col int }
	var hs []hc
	for i, h := range s.header {
		n, err := strconv.Atoi(h)
		if err != nil || n < 0 {
			continue
		}
		if s.cols[h] == i {
			hs = append(hs, hc{n, i})
		}
	}
	sort.Slice(hs, func(a, b int) bool { return hs[a].n < hs[b].n })
	out := make([]int, len(hs))
	for i, h := range hs {
		out[i] = h.col
	}
	return out
}
