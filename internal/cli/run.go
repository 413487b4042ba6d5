package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/justestif/tonal-divider/internal/engine"
	"github.com/justestif/tonal-divider/internal/features"
)

func newRunCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run <frames.jsonl>",
		Short: "Process a frames file offline and print the final structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			frames, err := readFramesFile(args[0])
			if err != nil {
				return err
			}

			eng := engine.New(a.cfg.EngineConfig(), engine.WithLogger(a.logger))
			changes, err := eng.StepAll(frames)
			if err != nil {
				return fmt.Errorf("processing %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			snap := eng.Snapshot()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}

			fmt.Fprintf(out, "Processed %d frames (%d skipped), %d structure changes\n\n",
				len(frames), len(frames)-int(eng.Frames()), changes)
			fmt.Fprint(out, engine.FormatSummary(snap))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the final snapshot as JSON")
	return cmd
}

func readFramesFile(path string) ([]features.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening frames file: %w", err)
	}
	defer f.Close()

	frames, err := features.ReadFrames(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return frames, nil
}
