package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"stock-orderflow/internal/chips"
	"stock-orderflow/internal/model"
	"stock-orderflow/internal/threshold"
)

// ShowOptions configure the show command.
type ShowOptions struct {
	CheckpointID string
	ChipKey      string
}

// storedCheckpoint mirrors the JSON layout the processor persists.
type storedCheckpoint struct {
	TakenAt         time.Time                    `json:"takenAt"`
	Buffer          []model.TradeEvent           `json:"buffer"`
	Results         []threshold.LargeOrderResult `json:"results"`
	Threshold       threshold.Dynamic            `json:"threshold"`
	LastProcessTime time.Time                    `json:"lastProcessTime"`
}

// Show prints the persisted checkpoint and, optionally, a chip snapshot.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if a.Config.Database.DSN == "" {
		return errors.New("database not configured; nothing persisted to show")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	id := opts.CheckpointID
	if id == "" {
		id = a.Config.Processor.CheckpointID
	}
	raw, ok, err := store.Get(ctx, "checkpoint/"+id)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(os.Stdout, "no checkpoint %q found\n", id)
	} else {
		var cp storedCheckpoint
		if err := json.Unmarshal(raw, &cp); err != nil {
			return fmt.Errorf("decode checkpoint: %w", err)
		}

		large := 0
		for _, r := range cp.Results {
			if r.IsLargeOrder {
				large++
			}
		}

		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(writer, "Checkpoint\t%s\n", id)
		fmt.Fprintf(writer, "Taken at\t%s\n", cp.TakenAt.UTC().Format(time.RFC3339))
		fmt.Fprintf(writer, "Buffered trades\t%d\n", len(cp.Buffer))
		fmt.Fprintf(writer, "Recent results\t%d (%d large)\n", len(cp.Results), large)
		fmt.Fprintf(writer, "Threshold\t%.2f\n", cp.Threshold.Threshold)
		fmt.Fprintf(writer, "Mean / Std\t%.2f / %.2f\n", cp.Threshold.Mean, cp.Threshold.Std)
		fmt.Fprintf(writer, "Last process\t%s\n", cp.LastProcessTime.UTC().Format(time.RFC3339))
		writer.Flush()
	}

	if opts.ChipKey != "" {
		raw, ok, err := store.Get(ctx, opts.ChipKey)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(os.Stdout, "no chip snapshot %q found\n", opts.ChipKey)
			return nil
		}
		var dist chips.Distribution
		if err := json.Unmarshal(raw, &dist); err != nil {
			return fmt.Errorf("decode chip snapshot: %w", err)
		}

		fmt.Fprintln(os.Stdout)
		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(writer, "Chip snapshot\t%s\n", opts.ChipKey)
		fmt.Fprintf(writer, "Buckets\t%d\n", len(dist.Buckets))
		fmt.Fprintf(writer, "HHI\t%.4f\n", dist.HHI)
		fmt.Fprintf(writer, "Price range\t%.2f - %.2f\n", dist.MinPrice, dist.MaxPrice)
		fmt.Fprintf(writer, "Peaks\t%d\n", len(dist.Peaks.Peaks))
		fmt.Fprintf(writer, "Support / Resistance\t%d / %d\n", len(dist.Levels.SupportLevels), len(dist.Levels.ResistanceLevels))
		writer.Flush()
	}
	return nil
}
