package compile

import (
	"sort"
	"strings"

	"multicarrier-planner/internal/milp"
	"multicarrier-planner/internal/validate"
)

// Summary is the size and health of one compiled model.
type Summary struct {
	Scenario   string            `json:"scenario,omitempty"`
	Carriers   []string          `json:"carriers"`
	Years      []string          `json:"years"`
	Nodes      int               `json:"nodes"`
	Arcs       int               `json:"arcs"`
	Storage    int               `json:"storage"`
	Variables  int               `json:"variables"`
	Binaries   int               `json:"binaries"`
	ByPrefix   map[string]int    `json:"variables_by_prefix"`
	Rows       int               `json:"constraints"`
	ByFamily   map[string]int    `json:"constraints_by_family"`
	Deficit    string            `json:"deficit_class,omitempty"`
	Levels     map[string]string `json:"demand_levels"`
	Warnings   []string          `json:"warnings,omitempty"`
	PreSolve   *validate.Report  `json:"pre_solve"`
	DurationMS int64             `json:"duration_ms"`
}

func (c *Compiled) Summary() Summary {
	m := c.Result.Model
	s := Summary{
		Scenario:   c.Name,
		Years:      c.Index.Calendar.Years(),
		Nodes:      len(c.Index.Nodes()),
		Arcs:       len(c.Index.Arcs),
		Storage:    len(c.Index.Sites),
		Variables:  m.NumVars(),
		ByPrefix:   map[string]int{},
		Rows:       len(m.Constraints),
		ByFamily:   m.Families(),
		Deficit:    c.Result.DeficitClass,
		Levels:     map[string]string{},
		Warnings:   c.Warnings,
		PreSolve:   c.PreSolve,
		DurationMS: c.Duration.Milliseconds(),
	}
	for _, e := range c.Index.Carriers {
		s.Carriers = append(s.Carriers, string(e))
	}
	for e, l := range c.Result.Levels {
		s.Levels[string(e)] = string(l)
	}
	for _, v := range m.Vars() {
		if v.Kind == milp.Binary {
			s.Binaries++
		}
		prefix, _ := splitLabel(v.Name)
		s.ByPrefix[prefix]++
	}
	return s
}

// ValueRow is one solved variable.
// This is the primary artifact for "what the plan does".
type ValueRow struct {
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
	// Key is the comma separated index of the variable, e.g. "AB,G,2030,1".
	Key   string       `json:"key"`
	Kind  milp.VarKind `json:"kind"`
	Value float64      `json:"value"`
}

// ValueRows lists the recorded solution in column order. With nonZero set,
// variables at zero are skipped.
func ValueRows(m *milp.Model, nonZero bool) ([]ValueRow, error) {
	values, err := m.Values()
	if err != nil {
		return nil, err
	}
	rows := make([]ValueRow, 0, len(values))
	for i, v := range m.Vars() {
		if nonZero && values[i] == 0 {
			continue
		}
		prefix, key := splitLabel(v.Name)
		rows = append(rows, ValueRow{Name: v.Name, Prefix: prefix, Key: key, Kind: v.Kind, Value: values[i]})
	}
	return rows, nil
}

// splitLabel turns "FA[AB,G,2030,1]" into ("FA", "AB,G,2030,1").
func splitLabel(name string) (string, string) {
	i := strings.IndexByte(name, '[')
	if i < 0 || !strings.HasSuffix(name, "]") {
		return name, ""
	}
	return name[:i], name[i+1 : len(name)-1]
}

// BreakdownRow is one cost category of a solved plan.
type BreakdownRow struct {
	Category string  `json:"category"`
	Cost     float64 `json:"cost"`
}

// BreakdownRows orders a breakdown by category name.
func BreakdownRows(b map[string]float64) []BreakdownRow {
	out := make([]BreakdownRow, 0, len(b))
	for k, v := range b {
		out = append(out, BreakdownRow{Category: k, Cost: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}
