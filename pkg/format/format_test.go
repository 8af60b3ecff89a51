package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KB"},
		{9961472, "9.5 MB"},
		{5 << 30, "5.0 GB"},
		{-2048, "-2.0 KB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Bytes(tt.in))
	}
}

func TestNumber(t *testing.T) {
	assert.Equal(t, "0", Number(0))
	assert.Equal(t, "999", Number(999))
	assert.Equal(t, "10,380", Number(10380))
	assert.Equal(t, "1,234,567", Number(1234567))
}

func TestKilobytes(t *testing.T) {
	assert.Equal(t, "10,380KB", Kilobytes(10380.9))
	assert.Equal(t, "0KB", Kilobytes(0.4))
}

func TestBitrate(t *testing.T) {
	assert.Equal(t, "1.25 Mbps", Bitrate(1_250_000))
	assert.Equal(t, "128.0 kbps", Bitrate(128_000))
	assert.Equal(t, "900 bps", Bitrate(900))
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, "45.7%", Percentage(0.4567, 1))
	assert.Equal(t, "100%", Percentage(1, 0))
}

func TestCronDescription(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"* * * * *", "Every minute"},
		{"*/15 * * * *", "Every 15 minutes"},
		{"0 * * * *", "Every hour"},
		{"30 * * * *", "Every hour at :30"},
		{"5 */6 * * *", "Every 6 hours at :05"},
		{"0 2 * * *", "Daily at 2AM"},
		{"0 0 * * *", "Daily at midnight"},
		{"45 18 * * *", "Daily at 6:45PM"},
		{"0 9 * * 1", "Mondays at 9AM"},
		{"0 9 * * 1-5", "Weekdays at 9AM"},
		{"0 9 1 * *", "0 9 1 * *"},
		{"not a cron", "not a cron"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, CronDescription(tt.expr))
		})
	}
}
