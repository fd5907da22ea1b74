package compile

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"strconv"

	"multicarrier-planner/internal/milp"
	"multicarrier-planner/internal/solver"
	"multicarrier-planner/internal/validate"
)

func WriteValuesCSV(path string, rows []ValueRow) error {
	return create(path, func(f io.Writer) error {
		w := csv.NewWriter(f)
		defer w.Flush()

		header := []string{
			"variable",
			"prefix",
			"key",
			"kind",
			"value",
		}
		if err := w.Write(header); err != nil {
			return err
		}
		for _, r := range rows {
			row := []string{
				r.Name,
				r.Prefix,
				r.Key,
				r.Kind.String(),
				fmtFloat(r.Value),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	})
}

// WriteBreakdownCSV writes one row per cost category plus a closing total.
func WriteBreakdownCSV(path string, b map[string]float64) error {
	return create(path, func(f io.Writer) error {
		w := csv.NewWriter(f)
		defer w.Flush()

		if err := w.Write([]string{"category", "cost"}); err != nil {
			return err
		}
		total := 0.0
		for _, r := range BreakdownRows(b) {
			total += r.Cost
			if err := w.Write([]string{r.Category, fmtFloat(r.Cost)}); err != nil {
				return err
			}
		}
		if err := w.Write([]string{"total", fmtFloat(total)}); err != nil {
			return err
		}
		w.Flush()
		return w.Error()
	})
}

// Report is the JSON document written after a run.
type Report struct {
	Summary   Summary            `json:"summary"`
	Solve     *solver.Result     `json:"solve,omitempty"`
	Breakdown map[string]float64 `json:"breakdown,omitempty"`
	Total     float64            `json:"total,omitempty"`
	PostSolve *validate.Report   `json:"post_solve,omitempty"`
}

// NewReport combines a compile summary with an optional solve outcome.
func NewReport(c *Compiled, out *Outcome) Report {
	r := Report{Summary: c.Summary()}
	if out != nil {
		r.Solve = out.Solve
		r.Breakdown = out.Breakdown
		r.Total = out.Total
		r.PostSolve = out.PostSolve
	}
	return r
}

func WriteReportJSON(path string, r Report) error {
	return create(path, func(f io.Writer) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	})
}

// WriteLP exports the compiled model in CPLEX LP format.
func WriteLP(path string, m *milp.Model) error {
	return create(path, func(f io.Writer) error { return milp.WriteLP(f, m) })
}

func create(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
