package pipeline

import (
	"context"

	"github.com/shirou/gopsutil/v4/disk"
)

// DiskFree reports the bytes available on the filesystem holding path.
func DiskFree(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}
