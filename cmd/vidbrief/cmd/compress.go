package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/vidbrief/internal/config"
	"github.com/jmylchreest/vidbrief/internal/observability"
	"github.com/jmylchreest/vidbrief/internal/transcode"
	"github.com/jmylchreest/vidbrief/pkg/format"
)

var compressCmd = &cobra.Command{
	Use:   "compress <file>",
	Short: "Compress a single video under the size ceiling",
	Long: `Compress one video file until it fits under the size ceiling.

The file is re-encoded with ffmpeg using a bitrate derived from its duration
and the ceiling. An attempt that shrinks the file without reaching the ceiling
is fed back into the next attempt.

Examples:
  # Use the configured ceiling
  vidbrief compress clip.mov

  # Explicit ceiling and output, single-pass encode
  vidbrief compress clip.mov --ceiling 8MB --two-pass=false --out small.mp4`,
	Args: cobra.ExactArgs(1),
	RunE: runCompress,
}

func init() {
	rootCmd.AddCommand(compressCmd)

	compressCmd.Flags().String("ceiling", "", "size ceiling such as 9.5MB (default from transcode.size_ceiling)")
	compressCmd.Flags().Bool("two-pass", true, "use two-pass encoding (default from transcode.two_pass)")
	compressCmd.Flags().StringP("out", "o", "", "output path (default <name>-compressed.mp4 next to the input)")
	compressCmd.Flags().Bool("force", false, "compress even when the file is already under the ceiling")
	compressCmd.Flags().Bool("json", false, "print the transcode result as JSON")
}

func runCompress(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	input := args[0]

	ceiling := cfg.Transcode.SizeCeiling
	if s, _ := cmd.Flags().GetString("ceiling"); s != "" {
		if ceiling, err = config.ParseByteSize(s); err != nil {
			return fmt.Errorf("invalid --ceiling: %w", err)
		}
	}
	twoPass := cfg.Transcode.TwoPass
	if cmd.Flags().Changed("two-pass") {
		twoPass, _ = cmd.Flags().GetBool("two-pass")
	}
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = defaultCompressedPath(input)
	}

	info, err := os.Stat(input)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	force, _ := cmd.Flags().GetBool("force")
	if info.Size() <= ceiling.Bytes() && !force {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is %s, already under %s; nothing to do\n",
			input, format.Bytes(info.Size()), ceiling)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transcoder, err := newTranscoder(ctx, cfg, observability.WithOperation(newLogger(os.Stderr), "compress"))
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp("", "vidbrief-compress-")
	if err != nil {
		return fmt.Errorf("creating work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	result, err := transcoder.Transcode(ctx, transcode.Request{
		InputPath: input,
		CeilingKB: ceiling.KB(),
		TwoPass:   twoPass,
		WorkDir:   workDir,
	})
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON && result != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(result); encErr != nil {
			return fmt.Errorf("encoding result: %w", encErr)
		}
	} else if result != nil {
		printTranscodeResult(cmd.OutOrStdout(), result)
	}
	if err != nil {
		return fmt.Errorf("compressing %s: %w", input, err)
	}

	if err := moveFile(result.OutputPath, out); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", out, format.Bytes(result.OutputSize))
	return nil
}

func printTranscodeResult(w io.Writer, result *transcode.Result) {
	fmt.Fprintf(w, "%s: %s, ceiling %s\n",
		result.InputPath, format.Bytes(result.InputSize), format.Kilobytes(result.CeilingKB))
	for _, a := range result.Attempts {
		fmt.Fprintf(w, "  attempt %d: %s -> %s (video %s, audio %s, %s)\n",
			a.Number, format.Bytes(a.InputSize), format.Bytes(a.OutputSize),
			format.Bitrate(a.Plan.VideoBitrate), format.Bitrate(a.Plan.AudioBitrate),
			a.Duration.Round(time.Millisecond))
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
}

func defaultCompressedPath(input string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(filepath.Dir(input), base+"-compressed.mp4")
}

// moveFile renames src to dst, copying when they are on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	pending, err := renameio.NewPendingFile(dst, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := io.Copy(pending, in); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replacing %s: %w", dst, err)
	}
	return os.Remove(src)
}
