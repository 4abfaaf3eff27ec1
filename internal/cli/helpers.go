package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/floehq/floe/internal/config"
	"github.com/floehq/floe/internal/engine"
	"github.com/floehq/floe/internal/ir"
	"github.com/floehq/floe/internal/lang"
	"github.com/floehq/floe/internal/provider"
	"github.com/floehq/floe/internal/state"
)

// timeRound trims per-operation durations for display.
const timeRound = 10 * time.Millisecond

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

// colorize returns the ANSI code, or nothing when --no-color is set.
func colorize(code string) string {
	if noColor {
		return ""
	}
	return code
}

// resolveDir turns the optional positional argument into the configuration
// directory, defaulting to the working directory.
func resolveDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("failed to stat path %s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dir)
	}
	return abs, nil
}

// openBackend constructs the state backend selected by flags. The local
// backend resolves its path relative to the configuration directory.
func openBackend(dir string) (state.Backend, error) {
	cfg := make(map[string]string, len(backendConfig)+1)
	for k, v := range backendConfig {
		cfg[k] = v
	}
	if backendType == "local" || backendType == "" {
		path := statePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		cfg["path"] = path
	}
	return state.NewBackend(backendType, cfg)
}

// resolveValues collects variable assignments from *.vars.hcl files in the
// configuration directory, explicit --var-file files and --var flags, in
// that order of precedence, then resolves and validates them.
func resolveValues(cfg *ir.Config, dir string) (map[string]cty.Value, error) {
	assignments := make(map[string]cty.Value)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration directory %s: %w", dir, err)
	}
	var autoFiles []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), config.VarsSuffix) {
			autoFiles = append(autoFiles, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(autoFiles)

	for _, path := range append(autoFiles, varFiles...) {
		vals, err := config.ParseVarsFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for name, val := range vals {
			assignments[name] = val
		}
	}

	for _, raw := range varFlags {
		name, val, err := config.ParseVarFlag(raw)
		if err != nil {
			return nil, err
		}
		assignments[name] = val
	}

	values, err := config.ResolveVariables(cfg, assignments)
	if err != nil {
		return nil, err
	}
	if err := config.CheckValidations(cfg, values); err != nil {
		return nil, err
	}
	return values, nil
}

// run bundles everything a planning or applying command needs.
type run struct {
	dir     string
	cfg     *ir.Config
	backend state.Backend
	st      *ir.State
	scope   *lang.Scope
	eng     *engine.Engine
}

// newRun loads configuration, variables, state and providers for a command.
func newRun(ctx context.Context, args []string) (*run, error) {
	dir, err := resolveDir(args)
	if err != nil {
		return nil, err
	}

	cfg, err := config.NewLoader().LoadDir(dir)
	if err != nil {
		return nil, err
	}
	values, err := resolveValues(cfg, dir)
	if err != nil {
		return nil, err
	}

	backend, err := openBackend(dir)
	if err != nil {
		return nil, err
	}
	st, err := backend.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	registry := provider.NewRegistry()
	if err := loadProviders(ctx, registry, cfg, st); err != nil {
		return nil, err
	}

	scope := lang.NewScope(values)
	for _, rec := range st.Resources {
		if err := scope.SetRecord(rec); err != nil {
			return nil, err
		}
	}

	eng := engine.New(registry)
	eng.Parallelism = parallelism

	return &run{
		dir:     dir,
		cfg:     cfg,
		backend: backend,
		st:      st,
		scope:   scope,
		eng:     eng,
	}, nil
}

// loadProviders loads and configures every provider named by the
// configuration or by existing state records (the latter for deletes).
func loadProviders(ctx context.Context, registry *provider.Registry, cfg *ir.Config, st *ir.State) error {
	seen := make(map[string]bool)
	names := []string{}
	for _, res := range cfg.Resources {
		if res.Provider != "" && !seen[res.Provider] {
			seen[res.Provider] = true
			names = append(names, res.Provider)
		}
	}
	for _, rec := range st.Resources {
		if rec.Provider != "" && !seen[rec.Provider] {
			seen[rec.Provider] = true
			names = append(names, rec.Provider)
		}
	}

	for _, name := range names {
		if err := registry.LoadProvider(name); err != nil {
			return fmt.Errorf("failed to load provider %s: %w", name, err)
		}
		p, err := registry.Get(name)
		if err != nil {
			return err
		}
		if err := p.Configure(ctx, nil); err != nil {
			return fmt.Errorf("failed to configure provider %s: %w", name, err)
		}
	}
	return nil
}

// renderPlan prints the detailed change list for a plan.
func renderPlan(plan *ir.Plan) {
	for _, change := range plan.Changes {
		renderChange(change)
	}
	renderSummary(plan.Summary)
}

func actionSymbol(action ir.Action) string {
	switch action {
	case ir.ActionCreate:
		return "+"
	case ir.ActionDelete:
		return "-"
	case ir.ActionReplace:
		return "-/+"
	case ir.ActionUpdate:
		return "~"
	default:
		return " "
	}
}

func actionColor(action ir.Action) string {
	switch action {
	case ir.ActionCreate:
		return colorize(colorGreen)
	case ir.ActionDelete:
		return colorize(colorRed)
	case ir.ActionUpdate, ir.ActionReplace:
		return colorize(colorYellow)
	default:
		return ""
	}
}

func actionVerb(action ir.Action) string {
	switch action {
	case ir.ActionCreate:
		return "created"
	case ir.ActionUpdate:
		return "updated in-place"
	case ir.ActionReplace:
		return "replaced"
	case ir.ActionDelete:
		return "destroyed"
	default:
		return string(action)
	}
}

func renderChange(change *ir.Change) {
	color := actionColor(change.Action)
	reset := colorize(colorReset)

	resourceType, resourceName := change.Address, ""
	if change.Desired != nil {
		resourceType, resourceName = change.Desired.Type, change.Desired.Name
	} else if change.Prior != nil {
		resourceType, resourceName = change.Prior.Type, change.Prior.Name
	}

	fmt.Printf("\n%s  # %s will be %s%s\n", color, change.Address, actionVerb(change.Action), reset)
	fmt.Printf("%s  %s resource \"%s\" \"%s\" {%s\n", color, actionSymbol(change.Action), resourceType, resourceName, reset)

	switch {
	case len(change.Diff) > 0:
		renderAttrDiff(change.Diff)
	case change.Action == ir.ActionDelete && change.Prior != nil:
		for _, k := range sortedAttrKeys(change.Prior.Inputs) {
			fmt.Printf("%s      - %s = %s%s\n", colorize(colorRed), k, formatValue(change.Prior.Inputs[k]), reset)
		}
	}
	fmt.Printf("%s    }%s\n", color, reset)
}

// renderAttrDiff prints attribute-level before/after pairs.
func renderAttrDiff(diff map[string]*ir.AttrDiff) {
	reset := colorize(colorReset)
	for _, key := range sortedDiffKeys(diff) {
		d := diff[key]
		note := ""
		if d.ForcesReplacement {
			note = " # forces replacement"
		}
		switch {
		case d.Before == nil && d.After != nil:
			fmt.Printf("%s      + %s = %s%s%s\n", colorize(colorGreen), key, formatValue(d.After), note, reset)
		case d.After == nil:
			fmt.Printf("%s      - %s = %s%s%s\n", colorize(colorRed), key, formatValue(d.Before), note, reset)
		default:
			fmt.Printf("%s      ~ %s = %s -> %s%s%s\n", colorize(colorYellow), key, formatValue(d.Before), formatValue(d.After), note, reset)
		}
	}
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	switch val := v.(type) {
	case string:
		if val == lang.UnknownPlaceholder {
			return val
		}
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// renderSummary prints the plan summary counts.
func renderSummary(s *ir.PlanSummary) {
	fmt.Println("\nPlan Summary:")
	fmt.Printf("  Create:  %d\n", s.Create)
	fmt.Printf("  Update:  %d\n", s.Update)
	fmt.Printf("  Replace: %d\n", s.Replace)
	fmt.Printf("  Delete:  %d\n", s.Delete)
	fmt.Printf("  NoOp:    %d\n", s.NoOp)
}

func sortedDiffKeys(m map[string]*ir.AttrDiff) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedAttrKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// renderOutputs prints projected outputs sorted by name. Sensitive values
// are masked; unavailable outputs name their condition instead of a value.
func renderOutputs(projected map[string]*engine.OutputValue) {
	names := make([]string, 0, len(projected))
	for name := range projected {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		val := projected[name]
		switch {
		case val.Unavailable:
			fmt.Printf("  %s = (unavailable: a referenced resource failed or was skipped)\n", name)
		case val.Sensitive:
			fmt.Printf("  %s = (sensitive value)\n", name)
		default:
			fmt.Printf("  %s = %s\n", name, formatValue(val.Value))
		}
	}
}

// applyCallback prints per-operation progress during apply and destroy.
func applyCallback(event engine.ApplyEvent) {
	switch {
	case event.Started:
		fmt.Printf("%s: %s...\n", event.Address, string(event.Action))
	case event.Status == engine.StatusSucceeded:
		fmt.Printf("%s%s: done (%s)%s\n", colorize(colorGreen), event.Address, event.Duration.Round(timeRound), colorize(colorReset))
	case event.Status == engine.StatusFailed:
		fmt.Printf("%s%s: failed: %v%s\n", colorize(colorRed), event.Address, event.Error, colorize(colorReset))
	case event.Status == engine.StatusSkipped:
		fmt.Printf("%s%s: skipped%s\n", colorize(colorYellow), event.Address, colorize(colorReset))
	}
}
