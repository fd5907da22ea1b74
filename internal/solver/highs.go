package solver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"multicarrier-planner/internal/milp"
)

// HiGHS drives the highs command-line binary through LP and solution files.
type HiGHS struct {
	Binary string
	// WorkDir holds the exchange files; empty uses a fresh temp directory
	// that is removed afterwards.
	WorkDir string
	// Grace is added to the time limit before the process is killed.
	Grace time.Duration
}

func NewHiGHS(binary string) *HiGHS {
	if binary == "" {
		binary = "highs"
	}
	return &HiGHS{Binary: binary, Grace: 10 * time.Second}
}

func (h *HiGHS) Name() string { return "highs" }

func (h *HiGHS) Solve(ctx context.Context, m *milp.Model, opts Options) (*Result, error) {
	dir := h.WorkDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "highs-*")
		if err != nil {
			return nil, fmt.Errorf("create work dir: %w", err)
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}
	lpPath := filepath.Join(dir, "model.lp")
	optPath := filepath.Join(dir, "options.txt")
	solPath := filepath.Join(dir, "solution.sol")

	if err := writeFile(lpPath, func(w io.Writer) error { return milp.WriteLP(w, m) }); err != nil {
		return nil, fmt.Errorf("write model: %w", err)
	}
	if err := writeFile(optPath, func(w io.Writer) error { return writeOptions(w, opts) }); err != nil {
		return nil, fmt.Errorf("write options: %w", err)
	}

	runCtx := ctx
	if opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.TimeLimit+h.Grace)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(runCtx, h.Binary,
		"--model_file", lpPath,
		"--options_file", optPath,
		"--solution_file", solPath,
	)
	cmd.WaitDelay = 2 * time.Second
	out, runErr := cmd.CombinedOutput()
	elapsed := time.Since(start)

	if runCtx.Err() != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return &Result{Status: StatusTimeout, Runtime: elapsed, Detail: "solver process exceeded the time limit"}, nil
	}
	if runErr != nil {
		var ee *exec.ExitError
		if !errors.As(runErr, &ee) {
			return nil, fmt.Errorf("run %s: %w", h.Binary, runErr)
		}
		if _, err := os.Stat(solPath); err != nil {
			msg := strings.TrimSpace(string(out))
			return nil, fmt.Errorf("%s exited with %d: %s", h.Binary, ee.ExitCode(), msg)
		}
	}

	f, err := os.Open(solPath)
	if err != nil {
		return nil, fmt.Errorf("open solution: %w", err)
	}
	defer f.Close()
	sol, err := parseSolution(f)
	if err != nil {
		return nil, fmt.Errorf("parse solution: %w", err)
	}
	res := &Result{Status: sol.status(), Objective: sol.objective, Runtime: elapsed, Detail: sol.model}
	if res.Status.HasSolution() {
		res.Values, err = sol.values(m)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
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

func writeOptions(w io.Writer, opts Options) error {
	bw := bufio.NewWriter(w)
	if opts.TimeLimit > 0 {
		fmt.Fprintf(bw, "time_limit = %g\n", opts.TimeLimit.Seconds())
	}
	if opts.MIPGap > 0 {
		fmt.Fprintf(bw, "mip_rel_gap = %g\n", opts.MIPGap)
	}
	fmt.Fprintln(bw, "write_solution_style = 0")
	return bw.Flush()
}

type solution struct {
	model     string
	primal    string
	objective float64
	columns   map[string]float64
}

func (s *solution) status() Status {
	m := strings.ToLower(s.model)
	feasible := strings.EqualFold(s.primal, "feasible")
	switch {
	case m == "optimal":
		return StatusOptimal
	case strings.Contains(m, "time limit"), strings.Contains(m, "iteration limit"),
		strings.Contains(m, "interrupt"), strings.Contains(m, "solution limit"):
		if feasible {
			return StatusFeasible
		}
		return StatusTimeout
	case strings.Contains(m, "unbounded") && !strings.Contains(m, "infeasible"):
		return StatusUnbounded
	case strings.Contains(m, "infeasible"):
		return StatusInfeasible
	case feasible:
		return StatusFeasible
	default:
		return Status(strings.ReplaceAll(m, " ", "_"))
	}
}

// values maps the written column names back onto model variable names.
// Columns that appear in no row are not reported by the solver; they sit at
// 0 when their bounds allow it.
func (s *solution) values(m *milp.Model) (map[string]float64, error) {
	out := make(map[string]float64, m.NumVars())
	for i, v := range m.Vars() {
		x, ok := s.columns[milp.ColumnName(i)]
		if !ok {
			if v.Lower > 0 || v.Upper < 0 {
				return nil, fmt.Errorf("solution has no value for %s (%s)", milp.ColumnName(i), v.Name)
			}
			x = 0
		}
		out[v.Name] = x
	}
	return out, nil
}

// parseSolution reads the raw solution format of the highs binary:
//
//	Model status
//	Optimal
//
//	# Primal solution values
//	Feasible
//	Objective 20
//	# Columns 2
//	x0 10
//	x1 10
//	# Rows ...
func parseSolution(r io.Reader) (*solution, error) {
	s := &solution{columns: map[string]float64{}}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	next := func() (string, bool) {
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				return line, true
			}
		}
		return "", false
	}
	for {
		line, ok := next()
		if !ok {
			break
		}
		switch {
		case line == "Model status":
			s.model, _ = next()
		case line == "# Primal solution values":
			s.primal, _ = next()
		case strings.HasPrefix(line, "Objective "):
			v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, "Objective ")), 64)
			if err != nil {
				return nil, fmt.Errorf("objective %q: %w", line, err)
			}
			s.objective = v
		case strings.HasPrefix(line, "# Columns "):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "# Columns ")))
			if err != nil {
				return nil, fmt.Errorf("column count %q: %w", line, err)
			}
			for i := 0; i < n; i++ {
				row, ok := next()
				if !ok {
					return nil, fmt.Errorf("expected %d columns, got %d", n, i)
				}
				fields := strings.Fields(row)
				if len(fields) != 2 {
					return nil, fmt.Errorf("malformed column line %q", row)
				}
				v, err := strconv.ParseFloat(fields[1], 64)
				if err != nil {
					return nil, fmt.Errorf("column %s: %w", fields[0], err)
				}
				s.columns[fields[0]] = v
			}
		case strings.HasPrefix(line, "# Dual solution values"):
			// Rows and duals are not used.
			return s, sc.Err()
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if s.model == "" {
		return nil, errors.New("missing model status")
	}
	return s, nil
}
