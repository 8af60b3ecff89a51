// Package testutil provides test utilities including sample data generation.
package testutil

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vidbrief/internal/config"
	"github.com/jmylchreest/vidbrief/internal/database"
	"github.com/jmylchreest/vidbrief/internal/models"
)

// Fictional subjects for generated videos. Never use real product or brand names.
var (
	Subjects = []string{
		"Quarterly demo",
		"Onboarding walkthrough",
		"Sprint review",
		"Bug reproduction",
		"Design critique",
		"Customer interview",
		"Release rehearsal",
		"Incident retro",
	}

	Topics = []string{
		"dashboard",
		"exports",
		"billing",
		"search",
		"notifications",
		"permissions",
		"reporting",
		"mobile",
		"latency",
		"onboarding",
	}

	Extensions = []string{".mp4", ".mov", ".mkv", ".avi"}
)

// NewTestDB opens a migrated in-memory SQLite database that is closed when
// the test ends.
func NewTestDB(t testing.TB) *database.DB {
	t.Helper()
	db, err := database.New(config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      ":memory:",
		LogLevel: "silent",
	}, nil, &database.Options{PrepareStmt: false})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

// SampleVideo is a generated video description with the tagged model
// response a summarizer would return for it.
type SampleVideo struct {
	FileName  string
	Title     string
	KeyPoints []string
	Summary   string
	Tags      []string
	Size      int64
}

// Response renders the tagged model response for the video.
func (s *SampleVideo) Response() string {
	points := make([]string, len(s.KeyPoints))
	for i, p := range s.KeyPoints {
		points[i] = "- " + p
	}
	return fmt.Sprintf("<TITLE>%s</TITLE>\n<KEYPOINTS>%s</KEYPOINTS>\n<SUMMARY>%s</SUMMARY>\n<TAGS>%s</TAGS>",
		s.Title, strings.Join(points, "\n"), s.Summary, strings.Join(s.Tags, ", "))
}

// ToSummary converts the sample into a VideoSummary belonging to runID.
func (s *SampleVideo) ToSummary(runID models.ULID, objectURI string) *models.VideoSummary {
	v := &models.VideoSummary{
		RunID:        runID,
		SourceName:   s.FileName,
		ObjectURI:    objectURI,
		Title:        s.Title,
		KeyPoints:    "- " + strings.Join(s.KeyPoints, "\n- "),
		Summary:      s.Summary,
		RawResponse:  s.Response(),
		MimeType:     "video/mp4",
		OriginalSize: s.Size,
		FinalSize:    s.Size,
	}
	v.SetTags(s.Tags)
	return v
}

// SampleDataGenerator generates realistic but fictional video data for testing.
type SampleDataGenerator struct {
	rng *rand.Rand
	seq int
}

// NewSampleDataGenerator creates a new sample data generator with a random seed.
func NewSampleDataGenerator() *SampleDataGenerator {
	return NewSampleDataGeneratorWithSeed(time.Now().UnixNano())
}

// NewSampleDataGeneratorWithSeed creates a new generator with a fixed seed for reproducibility.
func NewSampleDataGeneratorWithSeed(seed int64) *SampleDataGenerator {
	return &SampleDataGenerator{rng: rand.New(rand.NewSource(seed))} //nolint:gosec // test data only
}

func (g *SampleDataGenerator) randomSubject() string {
	return Subjects[g.rng.Intn(len(Subjects))]
}

// RandomTopics returns n distinct topics. n is capped at len(Topics).
func (g *SampleDataGenerator) RandomTopics(n int) []string {
	n = min(n, len(Topics))
	perm := g.rng.Perm(len(Topics))
	topics := make([]string, n)
	for i := range n {
		topics[i] = Topics[perm[i]]
	}
	return topics
}

// GenerateVideo generates one sample video. File names are unique per generator.
func (g *SampleDataGenerator) GenerateVideo() SampleVideo {
	g.seq++
	subject := g.randomSubject()
	topics := g.RandomTopics(2 + g.rng.Intn(3))
	ext := Extensions[g.rng.Intn(len(Extensions))]

	points := make([]string, len(topics))
	for i, topic := range topics {
		points[i] = fmt.Sprintf("%s changes discussed", topic)
	}

	return SampleVideo{
		FileName:  fmt.Sprintf("%s-%03d%s", strings.ToLower(strings.ReplaceAll(subject, " ", "-")), g.seq, ext),
		Title:     fmt.Sprintf("%s: %s", subject, topics[0]),
		KeyPoints: points,
		Summary:   fmt.Sprintf("A %s covering %s.", strings.ToLower(subject), strings.Join(topics, " and ")),
		Tags:      topics,
		Size:      int64(1+g.rng.Intn(50)) << 20,
	}
}

// GenerateVideos generates count sample videos.
func (g *SampleDataGenerator) GenerateVideos(count int) []SampleVideo {
	videos := make([]SampleVideo, count)
	for i := range videos {
		videos[i] = g.GenerateVideo()
	}
	return videos
}
