package cli

import (
	"github.com/spf13/cobra"

	"stock-orderflow/internal/app"
)

var (
	showCheckpointID string
	showChipKey      string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the persisted checkpoint and chip snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context(), app.ShowOptions{
			CheckpointID: showCheckpointID,
			ChipKey:      showChipKey,
		})
	},
}

func init() {
	showCmd.Flags().StringVar(&showCheckpointID, "checkpoint", "", "Checkpoint id (defaults to processor.checkpoint_id)")
	showCmd.Flags().StringVar(&showChipKey, "chip-key", "", "State store key of a chip snapshot to display")
}
