package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/vidbrief/internal/config"
	"github.com/jmylchreest/vidbrief/internal/ffmpeg"
	"github.com/jmylchreest/vidbrief/internal/transcode"
)

var probeCmd = &cobra.Command{
	Use:   "probe <file>",
	Short: "Show a file's media details and its bitrate plan",
	Long: `Probe a media file with ffprobe and print the values the transcoder
plans with: duration, streams and the bitrate split for the ceiling.

The output is JSON so it can be piped into other tools.`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().String("ceiling", "", "size ceiling to plan for (default from transcode.size_ceiling)")
	probeCmd.Flags().Duration("timeout", 30*time.Second, "probe timeout")
}

// probeOutput is the JSON printed by the probe command.
type probeOutput struct {
	Media     *ffmpeg.MediaProbe     `json:"media"`
	Plan      *transcode.BitratePlan `json:"plan,omitempty"`
	PlanError string                 `json:"plan_error,omitempty"`
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ceiling := cfg.Transcode.SizeCeiling
	if s, _ := cmd.Flags().GetString("ceiling"); s != "" {
		if ceiling, err = config.ParseByteSize(s); err != nil {
			return fmt.Errorf("invalid --ceiling: %w", err)
		}
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	info, err := ffmpeg.NewDetector(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath).Detect(ctx)
	if err != nil {
		return fmt.Errorf("detecting ffmpeg: %w", err)
	}

	media, err := ffmpeg.NewProber(info.FFprobePath).WithTimeout(timeout).ProbeMedia(ctx, args[0])
	if err != nil {
		return fmt.Errorf("probing %s: %w", args[0], err)
	}

	output := probeOutput{Media: media}
	plan, err := transcode.ComputePlan(media, ceiling.KB(), transcode.OptionsFromConfig(cfg.Transcode))
	if err != nil {
		output.PlanError = err.Error()
	} else {
		output.Plan = &plan
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}
