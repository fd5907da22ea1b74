package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"multicarrier-planner/internal/compile"
	"multicarrier-planner/internal/config"
	"multicarrier-planner/internal/logging"
	"multicarrier-planner/internal/model"
	"multicarrier-planner/internal/observability"
	"multicarrier-planner/internal/runlog"
	"multicarrier-planner/internal/validate"
)

// Exit codes.
const (
	exitOK         = 0
	exitError      = 1
	exitUsage      = 2
	exitInput      = 3 // the scenario itself is unusable
	exitNoSolution = 4 // pre-solve failed, or the solver found no plan
)

// errUsage marks a command line error; its message has been printed.
var errUsage = errors.New("usage")

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	var err error
	switch os.Args[1] {
	case "compile":
		err = cmdCompile(ctx, os.Args[2:])
	case "solve":
		err = cmdSolve(ctx, os.Args[2:])
	case "validate":
		err = cmdValidate(ctx, os.Args[2:])
	case "runs":
		err = cmdRuns(ctx, os.Args[2:])
	default:
		usage()
		err = errUsage
	}
	stop()
	os.Exit(exitCode(err))
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  cli compile  --config run.yaml [--lp out/model.lp] [--summary out/summary.json]")
	fmt.Println("  cli solve    --config run.yaml [--values out/values.csv] [--breakdown out/costs.csv] [--report out/report.json]")
	fmt.Println("  cli validate --config run.yaml")
	fmt.Println("  cli runs     --db runs.db [--n 20]")
	fmt.Println("")
	fmt.Println("notes:")
	fmt.Println("  - the scenario is a directory of CSV sheets or a JSON tables file")
	fmt.Println("  - exit code 3 means the input is invalid, 4 means no usable plan")
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, errUsage) {
		return exitUsage
	}
	fmt.Fprintln(os.Stderr, "error:", err)

	var (
		schema   *model.SchemaError
		dangling *model.DanglingReferenceError
		missing  *model.MissingParameterError
		domain   *model.FormulaDomainError
		status   *model.SolveStatusError
	)
	switch {
	case errors.As(err, &schema), errors.As(err, &dangling), errors.As(err, &missing), errors.As(err, &domain):
		return exitInput
	case errors.Is(err, compile.ErrPreSolveFailed), errors.As(err, &status):
		return exitNoSolution
	default:
		return exitError
	}
}

// session is what every pipeline command sets up from --config.
type session struct {
	cfg      *config.Config
	log      logging.Logger
	engine   *compile.Engine
	shutdown func(context.Context) error
}

func open(ctx context.Context, cfgPath string) (*session, error) {
	if cfgPath == "" {
		fmt.Println("--config is required")
		return nil, errUsage
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log := logging.New(logging.FromEnv(cfg.Logging))
	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, log: log, engine: compile.New(log, nil), shutdown: shutdown}, nil
}

func (s *session) close(ctx context.Context) {
	observability.ShutdownWithTimeout(context.WithoutCancel(ctx), s.shutdown, s.log)
}

func (s *session) compile(ctx context.Context) (*compile.Compiled, error) {
	tables, warnings, err := s.cfg.Tables()
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		fmt.Println("warning:", w)
	}
	c, err := s.engine.Compile(ctx, tables, s.cfg.Options())
	if err != nil {
		return nil, err
	}
	for _, w := range c.Warnings {
		fmt.Println("warning:", w)
	}
	return c, nil
}

func cmdCompile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML run config")
	lpPath := fs.String("lp", "", "Optional: write the model in LP format")
	summaryPath := fs.String("summary", "", "Optional: write the compile summary as JSON")
	_ = fs.Parse(args)

	s, err := open(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	c, err := s.compile(ctx)
	if err != nil {
		return err
	}
	printSummary(c.Summary())
	printReport(c.PreSolve)

	if *lpPath != "" {
		if err := ensureDir(*lpPath); err != nil {
			return err
		}
		if err := compile.WriteLP(*lpPath, c.Result.Model); err != nil {
			return err
		}
		fmt.Printf("Wrote model to %s\n", *lpPath)
	}
	if *summaryPath != "" {
		if err := ensureDir(*summaryPath); err != nil {
			return err
		}
		if err := compile.WriteReportJSON(*summaryPath, compile.NewReport(c, nil)); err != nil {
			return err
		}
		fmt.Printf("Wrote summary to %s\n", *summaryPath)
	}
	return nil
}

func cmdValidate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML run config")
	_ = fs.Parse(args)

	s, err := open(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	c, err := s.compile(ctx)
	if err != nil {
		return err
	}
	printReport(c.PreSolve)
	if !c.PreSolve.OK() {
		return fmt.Errorf("%w: %v", compile.ErrPreSolveFailed, c.PreSolve.Err())
	}
	fmt.Println("ok")
	return nil
}

func cmdSolve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("solve", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML run config")
	valuesPath := fs.String("values", "", "Optional: write non-zero variable values as CSV")
	allValues := fs.Bool("all", false, "Write zero values too")
	breakdownPath := fs.String("breakdown", "", "Optional: write the cost breakdown as CSV")
	reportPath := fs.String("report", "", "Optional: write the run report as JSON")
	_ = fs.Parse(args)

	s, err := open(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	slv, err := s.cfg.NewSolver()
	if err != nil {
		return err
	}
	start := time.Now()
	c, err := s.compile(ctx)
	if err != nil {
		return err
	}
	printSummary(c.Summary())

	out, solveErr := s.engine.Solve(ctx, c, slv, s.cfg.Options())
	if errors.Is(solveErr, compile.ErrPreSolveFailed) {
		printReport(c.PreSolve)
	}
	if err := s.record(ctx, c, out, solveErr, start); err != nil {
		s.log.Warn(ctx, "record run failed", logging.Err(err))
	}
	if solveErr != nil {
		return solveErr
	}

	fmt.Printf("Status=%s Objective=%.6g Runtime=%s\n", out.Solve.Status, out.Solve.Objective, out.Solve.Runtime)
	for _, r := range compile.BreakdownRows(out.Breakdown) {
		fmt.Printf("  %-22s %16.2f\n", r.Category, r.Cost)
	}
	fmt.Printf("  %-22s %16.2f\n", "total", out.Total)
	printReport(out.PostSolve)

	if *valuesPath != "" {
		rows, err := compile.ValueRows(c.Result.Model, !*allValues)
		if err != nil {
			return err
		}
		if err := ensureDir(*valuesPath); err != nil {
			return err
		}
		if err := compile.WriteValuesCSV(*valuesPath, rows); err != nil {
			return err
		}
		fmt.Printf("Wrote %d rows to %s\n", len(rows), *valuesPath)
	}
	if *breakdownPath != "" {
		if err := ensureDir(*breakdownPath); err != nil {
			return err
		}
		if err := compile.WriteBreakdownCSV(*breakdownPath, out.Breakdown); err != nil {
			return err
		}
	}
	if *reportPath != "" {
		if err := ensureDir(*reportPath); err != nil {
			return err
		}
		if err := compile.WriteReportJSON(*reportPath, compile.NewReport(c, out)); err != nil {
			return err
		}
		fmt.Printf("Wrote report to %s\n", *reportPath)
	}
	return nil
}

// record appends the solve to the configured run log, if any.
func (s *session) record(ctx context.Context, c *compile.Compiled, out *compile.Outcome, solveErr error, start time.Time) error {
	if s.cfg.RunLog == "" {
		return nil
	}
	l, err := runlog.Open(ctx, s.cfg.RunLog)
	if err != nil {
		return err
	}
	defer l.Close()

	m := c.Result.Model
	run := runlog.Run{
		Scenario:    c.Name,
		Kind:        "solve",
		Variables:   m.NumVars(),
		Constraints: len(m.Constraints),
		Warnings:    len(c.Warnings),
		DurationMs:  time.Since(start).Milliseconds(),
	}
	var status *model.SolveStatusError
	switch {
	case errors.Is(solveErr, compile.ErrPreSolveFailed):
		run.Status = "pre_solve_failed"
	case errors.As(solveErr, &status):
		run.Status = status.Status
	case solveErr != nil:
		run.Status = "error"
	default:
		run.Status = string(out.Solve.Status)
		run.Objective = out.Solve.Objective
		run.PostSolveOK = out.PostSolve.OK()
	}
	stored, err := l.Record(ctx, run)
	if err != nil {
		return err
	}
	fmt.Printf("Recorded run %s\n", stored.ID)
	return nil
}

func cmdRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	dbPath := fs.String("db", "runs.db", "Path to the run log")
	n := fs.Int("n", 20, "Number of runs to list")
	_ = fs.Parse(args)

	if _, err := os.Stat(*dbPath); err != nil {
		return err
	}
	l, err := runlog.Open(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer l.Close()

	runs, err := l.Recent(ctx, *n)
	if err != nil {
		return err
	}
	fmt.Printf("%-36s %-20s %-18s %-16s %-8s %-8s %-6s\n", "id", "created", "scenario", "status", "vars", "rows", "post")
	for _, r := range runs {
		fmt.Printf("%-36s %-20s %-18s %-16s %-8d %-8d %-6t\n",
			r.ID,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.Scenario,
			r.Status,
			r.Variables,
			r.Constraints,
			r.PostSolveOK,
		)
	}
	return nil
}

func printSummary(s compile.Summary) {
	fmt.Printf("Scenario %s: %d nodes, %d arcs, %d storage sites, years %v\n", s.Scenario, s.Nodes, s.Arcs, s.Storage, s.Years)
	fmt.Printf("Variables=%d (binary %d) Constraints=%d Compile=%dms\n", s.Variables, s.Binaries, s.Rows, s.DurationMS)
	families := make([]string, 0, len(s.ByFamily))
	for f := range s.ByFamily {
		families = append(families, f)
	}
	sort.Strings(families)
	for _, f := range families {
		fmt.Printf("  %-22s %8d\n", f, s.ByFamily[f])
	}
}

func printReport(r *validate.Report) {
	if r == nil {
		return
	}
	verdict := "passed"
	if !r.OK() {
		verdict = "FAILED"
	}
	fmt.Printf("%s %s\n", r.Phase, verdict)
	for _, c := range r.Checks {
		fmt.Printf("  %-22s checked=%-8d violations=%d\n", c.Name, c.Checked, c.Violations)
	}
	for _, is := range r.Issues {
		fmt.Printf("  ! %s %s: %s\n", is.Check, is.Entity, is.Detail)
	}
	if r.Phase == validate.PhasePost {
		fmt.Printf("  max violation %.3g at %s\n", r.MaxViolation, r.WorstRow)
	}
}

// ensureDir creates the parent directory of an output path.
func ensureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
