package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/floehq/floe/internal/ir"
	"github.com/floehq/floe/internal/provider"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [dir]",
	Short: "Reconcile state with real-world resources",
	Long: `Reads every resource recorded in state back from its provider and
updates the recorded attributes. Resources that no longer exist are
dropped from state so the next plan recreates them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	r, err := newRun(ctx, args)
	if err != nil {
		return err
	}

	if len(r.st.Resources) == 0 {
		fmt.Println("No resources in state. Nothing to refresh.")
		return nil
	}

	if err := r.backend.Lock(); err != nil {
		return err
	}
	defer r.backend.Unlock()

	var drifted, gone int
	// Iterate over a copy: records may be removed while walking.
	records := append([]*ir.Record{}, r.st.Resources...)
	for _, rec := range records {
		prov, err := r.eng.Registry.Get(rec.Provider)
		if err != nil {
			return fmt.Errorf("%s: %w", rec.Addr(), err)
		}

		priorJSON, err := json.Marshal(rec.Outputs)
		if err != nil {
			return fmt.Errorf("%s: encoding recorded state: %w", rec.Addr(), err)
		}
		resp, err := prov.Read(ctx, &provider.ReadRequest{
			Type:      rec.Type,
			Name:      rec.Name,
			PriorJSON: priorJSON,
		})
		if err != nil {
			return fmt.Errorf("%s: refresh failed: %w", rec.Addr(), err)
		}

		if !resp.Exists {
			fmt.Printf("%s: no longer exists, removing from state\n", rec.Addr())
			r.st.Remove(rec.Addr())
			gone++
			continue
		}

		var outputs map[string]any
		if len(resp.OutputsJSON) > 0 {
			if err := json.Unmarshal(resp.OutputsJSON, &outputs); err != nil {
				return fmt.Errorf("%s: decoding provider response: %w", rec.Addr(), err)
			}
		}
		if changed(rec.Outputs, outputs) {
			fmt.Printf("%s: attributes drifted, updating state\n", rec.Addr())
			rec.Outputs = outputs
			drifted++
		}
	}

	if drifted == 0 && gone == 0 {
		fmt.Println("State is up-to-date with real-world resources.")
		return nil
	}

	if err := r.backend.Write(ctx, r.st); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	fmt.Printf("Refresh complete: %d updated, %d removed.\n", drifted, gone)
	return nil
}

func changed(before, after map[string]any) bool {
	if len(before) != len(after) {
		return true
	}
	beforeJSON, _ := json.Marshal(before)
	afterJSON, _ := json.Marshal(after)
	return string(beforeJSON) != string(afterJSON)
}
