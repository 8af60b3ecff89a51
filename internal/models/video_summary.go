package models

import (
	"strings"
)

// VideoSummary is the structured AI summary of one processed video.
type VideoSummary struct {
	BaseModel

	RunID      ULID   `gorm:"type:varchar(26);index;not null" json:"run_id"`
	SourceName string `gorm:"size:512;not null;index" json:"source_name"`
	// ObjectURI is where the uploaded video lives (gs://, s3:// or file://).
	ObjectURI string `gorm:"size:1024" json:"object_uri"`

	Title     string `gorm:"size:512" json:"title"`
	KeyPoints string `gorm:"type:text" json:"key_points"`
	Summary   string `gorm:"type:text" json:"summary"`
	// Tags is stored comma-joined; use TagList and SetTags.
	Tags        string `gorm:"size:1024" json:"tags"`
	RawResponse string `gorm:"type:text" json:"raw_response,omitempty"`

	MimeType     string `gorm:"size:100" json:"mime_type,omitempty"`
	Transcoded   bool   `json:"transcoded"`
	OriginalSize int64  `json:"original_size"`
	FinalSize    int64  `json:"final_size"`
}

// TableName returns the table name for VideoSummary.
func (VideoSummary) TableName() string {
	return "video_summaries"
}

// TagList returns the tags as a slice. It is never nil.
func (v *VideoSummary) TagList() []string {
	tags := []string{}
	for _, tag := range strings.Split(v.Tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// SetTags stores tags comma-joined.
func (v *VideoSummary) SetTags(tags []string) {
	v.Tags = strings.Join(tags, ",")
}

// Validate checks required fields.
func (v *VideoSummary) Validate() error {
	if v.RunID.IsZero() {
		return ErrRunIDRequired
	}
	if strings.TrimSpace(v.SourceName) == "" {
		return ErrSourceNameRequired
	}
	return nil
}
