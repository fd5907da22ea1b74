package milp

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
)

// ColumnName is the name column i carries in written LP files. Variable
// names of the model may contain characters the LP grammar rejects.
func ColumnName(i int) string { return "x" + strconv.Itoa(i) }

// RowName is the name constraint i carries in written LP files.
func RowName(i int) string { return "c" + strconv.Itoa(i) }

// Compact merges repeated columns and drops zero coefficients, keeping the
// order of first appearance.
func (e Expr) Compact() Expr {
	pos := make(map[int]int, len(e.Terms))
	out := Expr{Const: e.Const, Terms: make([]Term, 0, len(e.Terms))}
	for _, t := range e.Terms {
		if i, ok := pos[t.Var]; ok {
			out.Terms[i].Coef += t.Coef
			continue
		}
		pos[t.Var] = len(out.Terms)
		out.Terms = append(out.Terms, t)
	}
	kept := out.Terms[:0]
	for _, t := range out.Terms {
		if t.Coef != 0 {
			kept = append(kept, t)
		}
	}
	out.Terms = kept
	return out
}

// WriteLP writes m in CPLEX LP format as a minimization.
func WriteLP(w io.Writer, m *Model) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "\\ %d columns, %d rows\n", len(m.vars), len(m.Constraints))
	bw.WriteString("Minimize\n obj:")
	obj := m.Objective.Compact()
	if len(obj.Terms) == 0 && len(m.vars) > 0 {
		obj.Terms = []Term{{Var: 0, Coef: 0}}
	}
	writeTerms(bw, obj.Terms)
	bw.WriteString("\nSubject To\n")
	for i, c := range m.Constraints {
		e := c.Expr.Compact()
		if len(e.Terms) == 0 {
			continue
		}
		fmt.Fprintf(bw, " %s:", RowName(i))
		writeTerms(bw, e.Terms)
		fmt.Fprintf(bw, " %s %s\n", c.Sense, num(c.RHS-e.Const))
	}

	bw.WriteString("Bounds\n")
	var binaries []int
	for i, v := range m.vars {
		if v.Kind == Binary {
			binaries = append(binaries, i)
			continue
		}
		name := ColumnName(i)
		switch {
		case v.Lower == v.Upper:
			fmt.Fprintf(bw, " %s = %s\n", name, num(v.Lower))
		case math.IsInf(v.Lower, -1) && math.IsInf(v.Upper, 1):
			fmt.Fprintf(bw, " %s free\n", name)
		case v.Lower == 0 && math.IsInf(v.Upper, 1):
		default:
			fmt.Fprintf(bw, " %s <= %s <= %s\n", bound(v.Lower), name, bound(v.Upper))
		}
	}
	if len(binaries) > 0 {
		bw.WriteString("Binaries\n")
		for _, i := range binaries {
			fmt.Fprintf(bw, " %s\n", ColumnName(i))
		}
	}
	bw.WriteString("End\n")
	return bw.Flush()
}

func writeTerms(bw *bufio.Writer, terms []Term) {
	for i, t := range terms {
		if i > 0 && i%8 == 0 {
			bw.WriteString("\n  ")
		}
		sign := "+"
		c := t.Coef
		if c < 0 {
			sign, c = "-", -c
		}
		fmt.Fprintf(bw, " %s %s %s", sign, num(c), ColumnName(t.Var))
	}
}

func num(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func bound(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+inf"
	case math.IsInf(v, -1):
		return "-inf"
	default:
		return num(v)
	}
}
