package types

import "time"

// Video is the normalized shape of a YouTube video across search results
// and detail lookups. Fields absent from a given API part stay zero.
type Video struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	ChannelID    string        `json:"channel_id,omitempty"`
	ChannelTitle string        `json:"channel_title,omitempty"`
	PublishedAt  time.Time     `json:"published_at,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	ViewCount    uint64        `json:"view_count,omitempty"`
	LikeCount    uint64        `json:"like_count,omitempty"`
	CommentCount uint64        `json:"comment_count,omitempty"`
	Tags         []string      `json:"tags,omitempty"`
}

// SearchFilters narrows a content search.
type SearchFilters struct {
	MaxResults     int       `json:"max_results,omitempty"`
	ChannelID      string    `json:"channel_id,omitempty"`
	PublishedAfter time.Time `json:"published_after,omitempty"`
	Order          string    `json:"order,omitempty"`
	Language       string    `json:"language,omitempty"`
}

// Comment is a top-level comment on a video.
type Comment struct {
	ID          string    `json:"id"`
	Author      string    `json:"author"`
	Text        string    `json:"text"`
	LikeCount   int       `json:"like_count,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// TranscriptSegment is one timed cue of a video transcript.
type TranscriptSegment struct {
	Start time.Duration `json:"start"`
	Dur   time.Duration `json:"dur"`
	Text  string        `json:"text"`
}

// Transcript is the full transcript of a video in one language.
type Transcript struct {
	VideoID  string              `json:"video_id"`
	Language string              `json:"language"`
	Segments []TranscriptSegment `json:"segments"`
}

// Text concatenates all segments into plain text.
func (t *Transcript) Text() string {
	if len(t.Segments) == 0 {
		return ""
	}
	n := 0
	for _, s := range t.Segments {
		n += len(s.Text) + 1
	}
	buf := make([]byte, 0, n)
	for i, s := range t.Segments {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, s.Text...)
	}
	return string(buf)
}
