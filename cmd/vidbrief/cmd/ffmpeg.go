package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/vidbrief/internal/ffmpeg"
	"github.com/jmylchreest/vidbrief/internal/httpclient"
)

var ffmpegCmd = &cobra.Command{
	Use:   "ffmpeg",
	Short: "FFmpeg installation commands",
	Long:  `Commands for checking and installing the ffmpeg and ffprobe binaries vidbrief uses.`,
}

var ffmpegDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect the FFmpeg installation",
	Long: `Locate ffmpeg and ffprobe and print their version and encoders as JSON.

Binaries are looked up from ffmpeg.binary_path and ffmpeg.probe_path, then
VIDBRIEF_FFMPEG_BINARY and VIDBRIEF_FFPROBE_BINARY, then the working
directory and PATH.

Examples:
  vidbrief ffmpeg detect
  vidbrief ffmpeg detect --pretty > ffmpeg.json`,
	RunE: runFFmpegDetect,
}

var ffmpegInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install a static FFmpeg build",
	Long: `Download a static ffmpeg build and extract ffmpeg and ffprobe into a directory.

The archive may be gzip, bzip2 or xz compressed. --from accepts a URL or a
local archive path.

Examples:
  # Latest linux/amd64 static build into ./bin
  vidbrief ffmpeg install --dest ./bin

  # From a previously downloaded archive
  vidbrief ffmpeg install --from ffmpeg-release-amd64-static.tar.xz`,
	RunE: runFFmpegInstall,
}

func init() {
	rootCmd.AddCommand(ffmpegCmd)
	ffmpegCmd.AddCommand(ffmpegDetectCmd)
	ffmpegCmd.AddCommand(ffmpegInstallCmd)

	ffmpegDetectCmd.Flags().Bool("pretty", false, "pretty-print JSON output")
	ffmpegDetectCmd.Flags().Duration("timeout", 30*time.Second, "detection timeout")

	ffmpegInstallCmd.Flags().String("from", ffmpeg.StaticBuildURL, "archive URL or local path")
	ffmpegInstallCmd.Flags().String("dest", "bin", "directory to install the binaries into")
}

func runFFmpegDetect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	pretty, _ := cmd.Flags().GetBool("pretty")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	info, err := ffmpeg.NewDetector(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath).Detect(ctx)
	if err != nil {
		return fmt.Errorf("detecting ffmpeg: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(info)
}

func runFFmpegInstall(cmd *cobra.Command, args []string) error {
	from, _ := cmd.Flags().GetString("from")
	dest, _ := cmd.Flags().GetString("dest")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	archive := from
	if strings.HasPrefix(from, "http://") || strings.HasPrefix(from, "https://") {
		fmt.Fprintf(cmd.ErrOrStderr(), "downloading %s\n", from)
		httpCfg := httpclient.DefaultConfig()
		httpCfg.Timeout = 0
		path, err := ffmpeg.FetchArchive(ctx, httpclient.New(httpCfg), from)
		if err != nil {
			return err
		}
		defer os.Remove(path)
		archive = path
	}

	result, err := ffmpeg.InstallStaticFromFile(ctx, archive, dest)
	if err != nil {
		return fmt.Errorf("installing ffmpeg: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "installed %s and %s (%s archive)\n",
		result.FFmpegPath, result.FFprobePath, result.Compression)
	fmt.Fprintf(cmd.OutOrStdout(), "set ffmpeg.binary_path and ffmpeg.probe_path, or %s and %s, to use them\n",
		ffmpeg.FFmpegEnvVar, ffmpeg.FFprobeEnvVar)
	return nil
}
