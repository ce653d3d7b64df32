package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chartsmith/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		title        string
		sourceType   string
		audioAssetID string
		manualBPM    float64
		quantization string
		preset       string
		tuning       string
		stem         string
		jsonOut      bool
	)

	cmd := &cobra.Command{
		Use:   "submit <source-asset-id>",
		Short: "Submit an asset for chart import",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.owner()
			if err != nil {
				return err
			}

			req := api.SubmitRequest{
				SourceType:          strings.TrimSpace(sourceType),
				SourceAssetID:       strings.TrimSpace(args[0]),
				AudioAssetID:        strings.TrimSpace(audioAssetID),
				Title:               strings.TrimSpace(title),
				ManualBPM:           manualBPM,
				Quantization:        strings.TrimSpace(quantization),
				InstrumentPreset:    strings.TrimSpace(preset),
				TranscriptionTuning: strings.TrimSpace(tuning),
				SelectedStem:        strings.TrimSpace(stem),
			}

			jobID, err := ctx.client().withOwner(owner).Submit(cmd.Context(), req)
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd, map[string]string{"jobId": jobID})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s queued\n", jobID)
			fmt.Fprintf(cmd.OutOrStdout(), "Track progress with `chartsmith status %s`\n", jobID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Title for the imported level (required)")
	cmd.Flags().StringVar(&sourceType, "type", "", "Source type (midi, isolated_audio, full_mix_audio); inferred from the asset when omitted")
	cmd.Flags().StringVar(&audioAssetID, "audio-asset", "", "Audio asset to attach as playback media for MIDI imports")
	cmd.Flags().Float64Var(&manualBPM, "bpm", 0, "Manual tempo to use when none can be detected")
	cmd.Flags().StringVar(&quantization, "quantization", "", "Grid division for snapping (e.g. 1/8, 1/16)")
	cmd.Flags().StringVar(&preset, "preset", "", "Instrument preset for pitch range filtering")
	cmd.Flags().StringVar(&tuning, "tuning", "", "Transcription tuning profile (standard, sensitive, strict)")
	cmd.Flags().StringVar(&stem, "stem", "", "Stem to isolate from full mixes (vocals, bass, drums, other)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")

	_ = cmd.MarkFlagRequired("title")
	return cmd
}
