package data

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"multicarrier-planner/internal/model"
)

// File names of a scenario directory. Every sheet is optional except the
// node table and the scalar table.
const (
	NodesFile       = "nodes.csv"
	ArcsFile        = "arcs.csv"
	StorageFile     = "storage.csv"
	RegasFile       = "regasification.csv"
	ConsumptionFile = "consumption.csv"
	ProductionFile  = "production.csv"
	TimeFile        = "timeseries.csv"
	OtherFile       = "other.csv"
	legacyOtherFile = "o.csv"
)

// Load reads a scenario from a directory of CSV sheets or from a JSON file.
func Load(path string) (model.Tables, []string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.Tables{}, nil, err
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	t, err := LoadTablesJSON(path)
	return t, nil, err
}

func LoadTablesJSON(path string) (model.Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Tables{}, err
	}
	defer f.Close()
	t, err := DecodeTables(f)
	if err != nil {
		return model.Tables{}, fmt.Errorf("%s: %w", path, err)
	}
	if t.Name == "" {
		t.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return t, nil
}

// DecodeTables reads one JSON scenario document.
func DecodeTables(r io.Reader) (model.Tables, error) {
	var t model.Tables
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return model.Tables{}, err
	}
	return t, nil
}

// LoadDir reads the CSV sheets of a scenario directory. Warnings name
// legacy file names and skipped sheets.
func LoadDir(dir string) (model.Tables, []string, error) {
	l := &loader{dir: dir, t: model.Tables{Name: filepath.Base(filepath.Clean(dir))}}
	steps := []struct {
		file string
		fn   func(*sheet) error
	}{
		{NodesFile, l.nodes},
		{ArcsFile, l.arcs},
		{StorageFile, l.storage},
		{RegasFile, l.regas},
		{ConsumptionFile, l.consumption},
		{ProductionFile, l.production},
		{TimeFile, l.time},
	}
	for _, st := range steps {
		s, err := readSheet(dir, st.file)
		if err != nil {
			return model.Tables{}, nil, err
		}
		if s == nil {
			if st.file == NodesFile {
				return model.Tables{}, nil, &model.SchemaError{Table: "nodes", Reason: "nodes.csv not found in " + dir}
			}
			continue
		}
		if err := st.fn(s); err != nil {
			return model.Tables{}, nil, err
		}
	}
	if err := l.other(); err != nil {
		return model.Tables{}, nil, err
	}
	return l.t, l.warnings, nil
}

type loader struct {
	dir      string
	t        model.Tables
	warnings []string
}

func (l *loader) warnf(format string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func (l *loader) nodes(s *sheet) error {
	c, err := s.require([]string{"n", "node", "node_id", "id"}, []string{"cn", "country"}, []string{"nuts2", "region"})
	if err != nil {
		return err
	}
	macro := s.col("rgn", "macro_region", "macro")
	lat, lon := s.col("lat"), s.col("lon")
	carriers := s.col("carriers", "f", "fuel")
	for i, row := range s.rows {
		r := model.NodeRow{
			ID:          s.str(row, c[0]),
			Country:     s.str(row, c[1]),
			Region:      s.str(row, c[2]),
			MacroRegion: s.str(row, macro),
		}
		if r.Lat, err = s.num(i, lat); err != nil {
			return err
		}
		if r.Lon, err = s.num(i, lon); err != nil {
			return err
		}
		for _, e := range strings.FieldsFunc(s.str(row, carriers), func(ch rune) bool { return ch == ';' || ch == '|' }) {
			r.Carriers = append(r.Carriers, model.Carrier(strings.TrimSpace(e)))
		}
		l.t.Nodes = append(l.t.Nodes, r)
	}
	return nil
}

func (l *loader) arcs(s *sheet) error {
	c, err := s.require([]string{"a", "arc", "id"}, []string{"start", "from"}, []string{"end", "to"}, []string{"f", "e", "fuel", "carrier"})
	if err != nil {
		return err
	}
	cols := map[string]int{
		"cap":     s.col("cap", "capacity"),
		"len":     s.col("len", "length"),
		"off":     s.col("off", "offshore"),
		"cal_x":   s.col("cal_x"),
		"cal_c":   s.col("cal_c"),
		"cal_b":   s.col("cal_b"),
		"cal_r":   s.col("cal_r"),
		"cal_l":   s.col("cal_l"),
		"exp_min": s.col("exp_min", "xmin"),
	}
	bidir := s.col("bidir", "bidirectional")
	reverse := s.col("rev", "reverse")
	expMax := s.col("exp_max", "xmax")
	for i, row := range s.rows {
		r := model.ArcRow{
			ID:      s.str(row, c[0]),
			Start:   s.str(row, c[1]),
			End:     s.str(row, c[2]),
			Carrier: model.Carrier(s.str(row, c[3])),
			Reverse: s.str(row, reverse),
		}
		nums := map[string]*float64{
			"cap": &r.Capacity, "len": &r.Length, "off": &r.Offshore,
			"cal_x": &r.CalCapex, "cal_c": &r.CalOpex, "cal_b": &r.CalBidir,
			"cal_r": &r.CalRepurp, "cal_l": &r.CalLoss, "exp_min": &r.ExpMin,
		}
		for name, dst := range nums {
			if *dst, err = s.num(i, cols[name]); err != nil {
				return err
			}
		}
		if r.Bidirectional, err = s.flag(i, bidir); err != nil {
			return err
		}
		v, ok, err := s.optNum(i, expMax)
		if err != nil {
			return err
		}
		if ok {
			r.ExpMax = &v
		}
		if err := r.Validate(); err != nil {
			return &model.SchemaError{Table: s.table, Row: s.lines[i], Reason: err.Error()}
		}
		l.t.Arcs = append(l.t.Arcs, r)
	}
	return nil
}

func (l *loader) storage(s *sheet) error {
	c, err := s.require([]string{"n", "node_id", "node"}, []string{"f", "fuel", "carrier"})
	if err != nil {
		return err
	}
	w, inj, ext := s.col("w", "working"), s.col("i", "injection"), s.col("x", "extraction")
	calC, calL := s.col("cal_c"), s.col("cal_l")
	ready := s.col("h2ready", "h2_ready")
	for i, row := range s.rows {
		r := model.StorageRow{Node: s.str(row, c[0]), Carrier: model.Carrier(s.str(row, c[1]))}
		for _, p := range []struct {
			dst *float64
			col int
		}{{&r.Working, w}, {&r.Injection, inj}, {&r.Extraction, ext}, {&r.CalOpex, calC}, {&r.CalLoss, calL}} {
			if *p.dst, err = s.num(i, p.col); err != nil {
				return err
			}
		}
		if r.H2Ready, err = s.flag(i, ready); err != nil {
			return err
		}
		if err := r.Validate(); err != nil {
			return &model.SchemaError{Table: s.table, Row: s.lines[i], Reason: err.Error()}
		}
		l.t.Storage = append(l.t.Storage, r)
	}
	return nil
}

func (l *loader) regas(s *sheet) error {
	c, err := s.require([]string{"n", "node_id", "node"}, []string{"f", "fuel", "carrier"})
	if err != nil {
		return err
	}
	year := s.col("y", "year")
	ub, lb, calC := s.col("ub", "upper"), s.col("lb", "lower"), s.col("cal_c")
	for i, row := range s.rows {
		r := model.RegasRow{Node: s.str(row, c[0]), Carrier: model.Carrier(s.str(row, c[1])), Year: s.year(i, year)}
		if r.Upper, err = s.num(i, ub); err != nil {
			return err
		}
		if r.Lower, err = s.num(i, lb); err != nil {
			return err
		}
		if r.CalOpex, err = s.num(i, calC); err != nil {
			return err
		}
		if err := r.Validate(); err != nil {
			return &model.SchemaError{Table: s.table, Row: s.lines[i], Reason: err.Error()}
		}
		l.t.Regas = append(l.t.Regas, r)
	}
	return nil
}

// consumption reads the wide demand sheet: one row per (node, carrier,
// year), one column per hour-slice.
func (l *loader) consumption(s *sheet) error {
	c, err := s.require([]string{"n", "node"}, []string{"f", "fuel", "carrier"}, []string{"y", "year"})
	if err != nil {
		return err
	}
	hours := s.hourColumns()
	if len(hours) == 0 {
		return &model.SchemaError{Table: s.table, Reason: "no hour columns (1, 2, 3, ...)"}
	}
	for i, row := range s.rows {
		for _, h := range hours {
			v, ok, err := s.optNum(i, h)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			l.t.Demand = append(l.t.Demand, model.DemandRow{
				Node:    s.str(row, c[0]),
				Carrier: model.Carrier(s.str(row, c[1])),
				Year:    s.year(i, c[2]),
				Hour:    s.header[h],
				Value:   v,
			})
		}
	}
	return nil
}

// production reads the wide supply sheet. mc and lb apply to every hour of
// the row.
func (l *loader) production(s *sheet) error {
	c, err := s.require([]string{"n", "node"}, []string{"f", "fuel", "carrier"}, []string{"y", "year"})
	if err != nil {
		return err
	}
	mcCol, lbCol := s.col("mc", "c_p"), s.col("lb", "lb_p")
	hours := s.hourColumns()
	if len(hours) == 0 {
		return &model.SchemaError{Table: s.table, Reason: "no hour columns (1, 2, 3, ...)"}
	}
	for i, row := range s.rows {
		mc, err := s.num(i, mcCol)
		if err != nil {
			return err
		}
		lb, err := s.num(i, lbCol)
		if err != nil {
			return err
		}
		for _, h := range hours {
			v, ok, err := s.optNum(i, h)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			l.t.Supply = append(l.t.Supply, model.SupplyRow{
				Node:         s.str(row, c[0]),
				Carrier:      model.Carrier(s.str(row, c[1])),
				Year:         s.year(i, c[2]),
				Hour:         s.header[h],
				Upper:        v,
				Lower:        lb,
				MarginalCost: mc,
			})
		}
	}
	return nil
}

func (l *loader) time(s *sheet) error {
	c, err := s.require([]string{"y", "year"}, []string{"h", "hour"})
	if err != nil {
		return err
	}
	scale := s.col("scaleup", "scale_up", "scale")
	for i := range s.rows {
		ts := model.TimeSlice{Year: s.year(i, c[0]), Hour: s.year(i, c[1])}
		if ts.Scale, err = s.num(i, scale); err != nil {
			return err
		}
		l.t.Time = append(l.t.Time, ts)
	}
	return nil
}

// other reads the long scalar sheet (param, indx1, indx2, value), falling
// back to the legacy o.csv name.
func (l *loader) other() error {
	s, err := readSheet(l.dir, OtherFile)
	if err != nil {
		return err
	}
	if s == nil {
		if s, err = readSheet(l.dir, legacyOtherFile); err != nil {
			return err
		}
		if s == nil {
			return &model.SchemaError{Table: "other", Reason: "other.csv not found in " + l.dir}
		}
		l.warnf("DEPRECATED: o.csv detected; please rename to other.csv")
	}
	c, err := s.require([]string{"param", "name"}, []string{"indx1", "sub"}, []string{"indx2", "carrier"}, []string{"value"})
	if err != nil {
		return err
	}
	for i, row := range s.rows {
		r := model.ScalarRow{
			Name:    s.str(row, c[0]),
			Sub:     s.str(row, c[1]),
			Carrier: model.Carrier(s.str(row, c[2])),
		}
		if r.Name == "" {
			l.warnf("other.csv line %d: empty param skipped", s.lines[i])
			continue
		}
		if r.Value, err = s.num(i, c[3]); err != nil {
			return err
		}
		l.t.Scalars = append(l.t.Scalars, r)
	}
	return nil
}
