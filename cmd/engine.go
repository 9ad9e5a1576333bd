package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/induction/config"
	"github.com/kilianp07/induction/core/engine"
	"github.com/kilianp07/induction/core/engine/history"
	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/core/simulate"
	"github.com/kilianp07/induction/infra/logger"
	infrastore "github.com/kilianp07/induction/infra/store"
	"github.com/kilianp07/induction/pkg/export"
)

var (
	snapshotPath string
	demand       int
	outputFormat string
	record       bool

	scenarioName      string
	scenarioParams    string
	modificationsPath string
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Compute the induction plan of a fleet snapshot",
	RunE:  runOptimize,
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a what-if scenario against a fleet snapshot",
	RunE:  runSimulate,
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List contradictions in a fleet snapshot",
	RunE:  runConflicts,
}

func init() {
	for _, c := range []*cobra.Command{optimizeCmd, simulateCmd, conflictsCmd} {
		c.Flags().StringVarP(&snapshotPath, "snapshot", "s", "", "fleet snapshot file (defaults to store.path)")
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{optimizeCmd, simulateCmd} {
		c.Flags().IntVarP(&demand, "demand", "d", 0, "service demand (defaults to engine.default_service_demand)")
	}
	optimizeCmd.Flags().StringVarP(&outputFormat, "output", "o", "json", "output format: json, table or csv")
	optimizeCmd.Flags().BoolVar(&record, "record", false, "append the run to the configured decision history")
	simulateCmd.Flags().StringVar(&scenarioName, "scenario", "", "named scenario")
	simulateCmd.Flags().StringVar(&scenarioParams, "params", "", "scenario parameters as a JSON object")
	simulateCmd.Flags().StringVarP(&modificationsPath, "modifications", "m", "", "JSON or YAML file listing modifications")
}

// newEngine builds an engine over the snapshot file. The returned snapshot
// is the one loaded.
func newEngine(cmd *cobra.Command) (*engine.Engine, *config.Config, model.Snapshot, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, model.Snapshot{}, err
	}
	logger.Configure(cfg.Logging.Level, cfg.Logging.Format)
	path := snapshotPath
	if path == "" {
		path = cfg.Store.Path
	}
	if path == "" {
		return nil, nil, model.Snapshot{}, errors.New("no snapshot: use --snapshot or set store.path")
	}
	snap, err := infrastore.LoadSnapshot(path)
	if err != nil {
		return nil, nil, model.Snapshot{}, err
	}
	eng, err := engine.New(ctxOf(cmd), cfg.Engine, infrastore.NewMemoryStore(snap), logger.New("engine"))
	if err != nil {
		return nil, nil, model.Snapshot{}, err
	}
	return eng, cfg, snap, nil
}

func runOptimize(cmd *cobra.Command, _ []string) error {
	eng, cfg, snap, err := newEngine(cmd)
	if err != nil {
		return err
	}
	if record {
		h, err := history.Open(cfg.History)
		if err != nil {
			return fmt.Errorf("decision history: %w", err)
		}
		defer func() { _ = h.Close() }()
		eng.SetHistory(h)
	}
	ds, err := eng.Optimize(ctxOf(cmd), snap, eng.ResolveDemand(demand), nil)
	if err != nil && !errors.Is(err, model.ErrInfeasibleDemand) {
		return err
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
	switch outputFormat {
	case "table":
		return writeTable(cmd.OutOrStdout(), ds)
	case "csv":
		return export.WriteCSV(cmd.OutOrStdout(), ds)
	case "json":
		return export.WriteJSON(cmd.OutOrStdout(), ds)
	default:
		return fmt.Errorf("unknown output format %s", outputFormat)
	}
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	eng, _, snap, err := newEngine(cmd)
	if err != nil {
		return err
	}
	req := simulate.Request{Snapshot: snap, Demand: demand}
	if modificationsPath != "" {
		mods, err := readModifications(modificationsPath)
		if err != nil {
			return err
		}
		req.Modifications = mods
	}
	if scenarioName != "" {
		sc := simulate.Scenario{Name: scenarioName}
		if scenarioParams != "" {
			if err := json.Unmarshal([]byte(scenarioParams), &sc.Params); err != nil {
				return fmt.Errorf("scenario params: %w", err)
			}
		}
		req.Scenario = &sc
	}
	res, err := eng.Simulate(ctxOf(cmd), req)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), res)
}

func runConflicts(cmd *cobra.Command, _ []string) error {
	eng, _, snap, err := newEngine(cmd)
	if err != nil {
		return err
	}
	list, err := eng.DetectConflicts(snap)
	if err != nil {
		return err
	}
	if list == nil {
		list = []model.Conflict{}
	}
	return writeJSON(cmd.OutOrStdout(), list)
}

// readModifications decodes a YAML or JSON list of modifications.
func readModifications(path string) ([]simulate.Modification, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read modifications: %w", err)
	}
	var raw []map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode modifications: %w", err)
	}
	var mods []simulate.Modification
	if err := mapstructure.Decode(raw, &mods); err != nil {
		return nil, fmt.Errorf("decode modifications: %w", err)
	}
	return mods, nil
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, ds model.DecisionSet) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRAINSET\tSTATUS\tRANK\tSCORE\tPINNED\tREASONS")
	for _, d := range ds.Decisions {
		reasons := make([]string, len(d.BlockingReasons))
		for i, r := range d.BlockingReasons {
			reasons[i] = string(r)
		}
		rank := "-"
		if d.Rank > 0 {
			rank = fmt.Sprint(d.Rank)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f\t%t\t%s\n", d.TrainsetID, d.Status, rank, d.Score, d.Pinned, strings.Join(reasons, ","))
	}
	fmt.Fprintf(tw, "\ndemand %d, eligible %d, shortfall %d\n", ds.Demand, ds.EligibleCount, ds.Shortfall)
	return tw.Flush()
}
