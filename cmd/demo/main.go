package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"

	"multicarrier-planner/internal/compile"
	"multicarrier-planner/internal/logging"
	"multicarrier-planner/internal/model"
)

// Demo:
// - Build a synthetic gas corridor in memory (no scenario files needed)
// - Compile it for a few represented hours
// - Print the model size per constraint family, optionally export LP and the tables
func main() {
	nodes := flag.Int("nodes", 4, "Number of nodes along the corridor")
	hours := flag.Int("n", 6, "Number of represented hours")
	capacity := flag.Float64("cap", 12, "Pipeline capacity per arc")
	lpPath := flag.String("lp", "", "Optional path to write the model in LP format")
	tablesPath := flag.String("tables", "", "Optional path to write the scenario as JSON (usable as a config scenario)")
	flag.Parse()

	if *nodes < 2 || *hours < 1 {
		fmt.Println("need --nodes >= 2 and --n >= 1")
		os.Exit(2)
	}

	tables := corridor(*nodes, *hours, *capacity)
	if *tablesPath != "" {
		raw, err := json.MarshalIndent(tables, "", "  ")
		if err != nil {
			panic(err)
		}
		if err := os.WriteFile(*tablesPath, raw, 0o644); err != nil {
			panic(err)
		}
		fmt.Printf("Wrote scenario to %s\n", *tablesPath)
	}

	log := logging.New(logging.FromEnv(logging.Config{Level: "warn"}))
	c, err := compile.New(log, nil).Compile(context.Background(), tables, compile.Options{})
	if err != nil {
		panic(err)
	}

	s := c.Summary()
	fmt.Printf("Compiled %q: %d variables (%d binary), %d constraints in %dms\n",
		s.Scenario, s.Variables, s.Binaries, s.Rows, s.DurationMS)
	for _, prefix := range sortedKeys(s.ByPrefix) {
		fmt.Printf("  var %-6s %6d\n", prefix, s.ByPrefix[prefix])
	}
	for _, family := range sortedKeys(s.ByFamily) {
		fmt.Printf("  row %-22s %6d\n", family, s.ByFamily[family])
	}
	fmt.Printf("Pre-solve ok=%t\n", c.PreSolve.OK())

	if *lpPath != "" {
		if err := compile.WriteLP(*lpPath, c.Result.Model); err != nil {
			panic(err)
		}
		fmt.Printf("Wrote model to %s\n", *lpPath)
	}
}

// corridor is a chain N0 -> N1 -> ... with supply at the head and a daily
// shaped demand at every other node.
func corridor(n, hours int, capacity float64) model.Tables {
	t := model.Tables{
		Name: "demo-corridor",
		Scalars: []model.ScalarRow{
			{Name: "bigm", Value: 1e6},
			{Name: "yearstep", Value: 1},
			{Name: "pipelenstd", Value: 100},
			{Name: "bfpipe", Carrier: "G", Value: 2},
			{Name: "bipipe", Carrier: "G", Value: 50},
			{Name: "blpipe", Carrier: "G", Value: 0},
			{Name: "penalty", Sub: "ZD", Value: 1000},
		},
	}
	const year = "2030"
	for i := 0; i < n; i++ {
		id := "N" + strconv.Itoa(i)
		t.Nodes = append(t.Nodes, model.NodeRow{ID: id, Country: "DE", Region: "R" + strconv.Itoa(i/2)})
		if i > 0 {
			prev := "N" + strconv.Itoa(i-1)
			t.Arcs = append(t.Arcs, model.ArcRow{
				ID:       prev + id,
				Start:    prev,
				End:      id,
				Carrier:  model.CarrierGas,
				Capacity: capacity,
				Length:   120,
			})
		}
	}
	for h := 1; h <= hours; h++ {
		hour := strconv.Itoa(h)
		t.Time = append(t.Time, model.TimeSlice{Year: year, Hour: hour, Scale: 8760 / float64(hours)})
		t.Supply = append(t.Supply, model.SupplyRow{Node: "N0", Carrier: model.CarrierGas, Year: year, Hour: hour, Upper: capacity * float64(n), MarginalCost: 20})
		shape := 1 + 0.5*math.Sin(2*math.Pi*float64(h-1)/float64(hours))
		for i := 1; i < n; i++ {
			t.Demand = append(t.Demand, model.DemandRow{
				Node:    "N" + strconv.Itoa(i),
				Carrier: model.CarrierGas,
				Year:    year,
				Hour:    hour,
				Value:   math.Round(4*shape*100) / 100,
			})
		}
	}
	return t
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
