package ffmpeg

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/dsnet/compress/bzip2"
	"github.com/google/renameio/v2"
	"github.com/ulikunitz/xz"

	"github.com/jmylchreest/vidbrief/internal/httpclient"
)

// StaticBuildURL is the upstream static ffmpeg build for linux/amd64.
const StaticBuildURL = "https://johnvansickle.com/ffmpeg/builds/ffmpeg-git-amd64-static.tar.xz"

// installedBinaries are the archive members extracted by InstallStatic.
var installedBinaries = []string{"ffmpeg", "ffprobe"}

// ErrBinaryMissingFromArchive is returned when the archive lacks ffmpeg or ffprobe.
var ErrBinaryMissingFromArchive = errors.New("archive does not contain ffmpeg and ffprobe")

// InstallResult lists the binaries written by InstallStatic.
type InstallResult struct {
	FFmpegPath  string `json:"ffmpeg_path"`
	FFprobePath string `json:"ffprobe_path"`
	Compression string `json:"compression"`
}

// InstallStatic extracts ffmpeg and ffprobe from a static-build tarball into destDir.
// The archive may be gzip, bzip2 or xz compressed, or a plain tar; the format is
// detected from magic bytes. Binaries are written atomically with mode 0755.
func InstallStatic(ctx context.Context, r io.Reader, destDir string) (*InstallResult, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", destDir, err)
	}

	reader, compression, err := decompress(r)
	if err != nil {
		return nil, err
	}
	if closer, ok := reader.(io.Closer); ok {
		defer closer.Close()
	}

	result := &InstallResult{Compression: compression}
	tr := tar.NewReader(reader)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := path.Base(hdr.Name)
		if !slices.Contains(installedBinaries, name) {
			continue
		}

		dest := filepath.Join(destDir, name)
		if err := writeExecutable(dest, tr); err != nil {
			return nil, err
		}
		switch name {
		case "ffmpeg":
			result.FFmpegPath = dest
		case "ffprobe":
			result.FFprobePath = dest
		}
		slog.Debug("installed binary", slog.String("path", dest), slog.Int64("size", hdr.Size))
	}

	if result.FFmpegPath == "" || result.FFprobePath == "" {
		return nil, ErrBinaryMissingFromArchive
	}
	return result, nil
}

// InstallStaticFromFile extracts binaries from an archive on disk.
func InstallStaticFromFile(ctx context.Context, archivePath, destDir string) (*InstallResult, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()
	return InstallStatic(ctx, f, destDir)
}

// FetchArchive downloads an archive to a temporary file and returns its path.
// The caller removes the file.
func FetchArchive(ctx context.Context, client *httpclient.Client, url string) (string, error) {
	resp, err := client.Get(ctx, url)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()
	if err := httpclient.CheckStatus(resp); err != nil {
		return "", fmt.Errorf("downloading %s: %w", url, err)
	}

	tmp, err := os.CreateTemp("", "vidbrief-ffmpeg-*.tar")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("saving archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("saving archive: %w", err)
	}
	return tmp.Name(), nil
}

// decompress peeks at the magic bytes and wraps r in the matching decompressor.
func decompress(r io.Reader) (io.Reader, string, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(6)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, "", fmt.Errorf("peeking header: %w", err)
	}

	switch {
	case len(header) >= 2 && header[0] == 0x1f && header[1] == 0x8b:
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return nil, "", fmt.Errorf("creating gzip reader: %w", err)
		}
		return gzr, "gzip", nil
	case len(header) >= 3 && header[0] == 'B' && header[1] == 'Z' && header[2] == 'h':
		bzr, err := bzip2.NewReader(br, nil)
		if err != nil {
			return nil, "", fmt.Errorf("creating bzip2 reader: %w", err)
		}
		return bzr, "bzip2", nil
	case len(header) >= 6 && header[0] == 0xfd && header[1] == '7' && header[2] == 'z' && header[3] == 'X' && header[4] == 'Z' && header[5] == 0x00:
		xzr, err := xz.NewReader(br)
		if err != nil {
			return nil, "", fmt.Errorf("creating xz reader: %w", err)
		}
		return xzr, "xz", nil
	default:
		return br, "none", nil
	}
}

func writeExecutable(dest string, r io.Reader) error {
	pending, err := renameio.NewPendingFile(dest, renameio.WithPermissions(0o755))
	if err != nil {
		return fmt.Errorf("creating pending file %s: %w", dest, err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := io.Copy(pending, r); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replacing %s: %w", dest, err)
	}
	return nil
}
