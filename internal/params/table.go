// Package params holds the scalar/calibration table and the global scalars
// derived from it.
package params

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"multicarrier-planner/internal/model"
)

// Key identifies one scalar entry. Empty Sub or Carrier are wildcards.
type Key struct {
	Name    string
	Sub     string
	Carrier model.Carrier
}

func (k Key) String() string {
	return fmt.Sprintf("(%s,%s,%s)", k.Name, k.Sub, k.Carrier)
}

// Level reports which lookup step resolved a value.
type Level int

const (
	LevelExact   Level = iota // (name, sub, carrier)
	LevelSub                  // (name, sub, "")
	LevelCarrier              // (name, "", carrier)
	LevelTable                // (name, "", "")
	LevelDefault              // documented built-in default
)

func (l Level) String() string {
	switch l {
	case LevelExact:
		return "exact"
	case LevelSub:
		return "sub"
	case LevelCarrier:
		return "carrier"
	case LevelTable:
		return "table"
	default:
		return "default"
	}
}

// Table is the scalar/calibration lookup table. It is immutable after
// construction apart from the record of substituted defaults.
type Table struct {
	rows  map[Key]float64
	order []Key
	dupes []Key

	mu     sync.Mutex
	substs map[Key]bool
}

// NewTable builds a table from raw rows. When two rows share a normalized key
// the first one wins; the rest are reported by Duplicates.
func NewTable(rows []model.ScalarRow) *Table {
	t := &Table{
		rows:   make(map[Key]float64, len(rows)),
		substs: map[Key]bool{},
	}
	for _, r := range rows {
		k := normalizeKey(r.Name, r.Sub, r.Carrier)
		if k.Name == "" {
			continue
		}
		if _, dup := t.rows[k]; dup {
			t.dupes = append(t.dupes, k)
			continue
		}
		t.rows[k] = r.Value
		t.order = append(t.order, k)
	}
	return t
}

func normalizeKey(name, sub string, carrier model.Carrier) Key {
	k := Key{
		Name: strings.ToLower(strings.TrimSpace(name)),
		Sub:  strings.ToUpper(strings.TrimSpace(sub)),
	}
	rawCarrier := strings.ToUpper(strings.TrimSpace(string(carrier)))
	switch k.Name {
	case "penality":
		k.Name = "penalty"
	case "pipe":
		if k.Sub == "LEN" && rawCarrier == "STD" {
			return Key{Name: "pipelenstd"}
		}
	case "bidir":
		switch k.Sub {
		case "VAR":
			k.Name, k.Sub = "bidirvar", ""
		case "FIX":
			return Key{Name: "bidirfix"}
		}
	case "repurparc", "repurpstor":
		if k.Sub == "FIX" {
			k.Name, k.Sub = k.Name+"fix", ""
		}
	}
	if rawCarrier != "" {
		k.Carrier = model.NormalizeCarrier(rawCarrier)
	}
	return k
}

type step struct {
	key   Key
	level Level
}

func chain(k Key) []step {
	steps := []step{{k, LevelExact}}
	if k.Sub != "" && k.Carrier != "" {
		steps = append(steps,
			step{Key{Name: k.Name, Sub: k.Sub}, LevelSub},
			step{Key{Name: k.Name, Carrier: k.Carrier}, LevelCarrier},
		)
	}
	if k.Sub != "" || k.Carrier != "" {
		steps = append(steps, step{Key{Name: k.Name}, LevelTable})
	}
	return steps
}

func (t *Table) find(k Key) (float64, Level, bool) {
	for _, s := range chain(k) {
		if v, ok := t.rows[s.key]; ok {
			return v, s.level, true
		}
	}
	return 0, 0, false
}

// Lookup resolves (name, sub, carrier) through the fallback chain:
// exact, (name, sub, ""), (name, "", carrier), (name, "", ""), then the
// documented default. When every level misses it returns a
// *model.MissingParameterError naming the exact key.
func (t *Table) Lookup(name, sub string, carrier model.Carrier) (float64, Level, error) {
	k := normalizeKey(name, sub, carrier)
	if v, lvl, ok := t.find(k); ok {
		return v, lvl, nil
	}
	if def, ok := defaults[k.Name]; ok {
		t.mu.Lock()
		t.substs[k] = true
		t.mu.Unlock()
		return def(k.Carrier), LevelDefault, nil
	}
	return 0, 0, &model.MissingParameterError{Name: k.Name, Sub: k.Sub, Carrier: k.Carrier}
}

// Value is Lookup without the level.
func (t *Table) Value(name, sub string, carrier model.Carrier) (float64, error) {
	v, _, err := t.Lookup(name, sub, carrier)
	return v, err
}

// Has reports whether a table row (not a built-in default) resolves the key.
func (t *Table) Has(name, sub string, carrier model.Carrier) bool {
	_, _, ok := t.find(normalizeKey(name, sub, carrier))
	return ok
}

// Penalty resolves the unit penalty of a deficit class for a carrier via
// (class, carrier), (class, ""), then the class-less ("", "") row.
func (t *Table) Penalty(class string, carrier model.Carrier) (float64, error) {
	k := normalizeKey("penalty", class, carrier)
	for _, c := range []Key{k, {Name: k.Name, Sub: k.Sub}, {Name: k.Name}} {
		if v, ok := t.rows[c]; ok {
			return v, nil
		}
	}
	return 0, &model.MissingParameterError{Name: k.Name, Sub: k.Sub, Carrier: k.Carrier}
}

// Classes returns the sorted deficit-penalty class ids.
func (t *Table) Classes() []string {
	seen := map[string]bool{}
	var out []string
	for _, k := range t.order {
		if k.Name == "penalty" && k.Sub != "" && !seen[k.Sub] {
			seen[k.Sub] = true
			out = append(out, k.Sub)
		}
	}
	sort.Strings(out)
	return out
}

// Duplicates returns the keys of rows ignored because an earlier row had the
// same normalized key.
func (t *Table) Duplicates() []Key { return t.dupes }

// Substitutions returns the keys that resolved to a built-in default, sorted.
func (t *Table) Substitutions() []Key {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Key, 0, len(t.substs))
	for k := range t.substs {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Len returns the number of distinct rows.
func (t *Table) Len() int { return len(t.order) }

// Calibration applies the convention that a factor of exactly zero means one.
func Calibration(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

// Merge overlays override rows onto base. Rows with the same normalized key
// replace the base value in place; new keys are appended.
func Merge(base, override []model.ScalarRow) []model.ScalarRow {
	out := make([]model.ScalarRow, len(base))
	copy(out, base)
	pos := map[Key]int{}
	for i, r := range out {
		k := normalizeKey(r.Name, r.Sub, r.Carrier)
		if _, ok := pos[k]; !ok {
			pos[k] = i
		}
	}
	for _, r := range override {
		k := normalizeKey(r.Name, r.Sub, r.Carrier)
		if i, ok := pos[k]; ok {
			out[i].Value = r.Value
			continue
		}
		pos[k] = len(out)
		out = append(out, r)
	}
	return out
}
