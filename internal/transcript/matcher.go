package transcript

import (
	"golang.org/x/text/language"

	"github.com/efikuta/youtube-knowledge-mcp/internal/youtube"
)

// pickTrack chooses the caption track best matching the preference order.
// Manually authored tracks beat auto-generated ("asr") ones: the match
// runs over authored tracks first and only falls through to the full set
// when no authored track matches at all. With nothing matching anywhere,
// the first track wins.
func pickTrack(tracks []youtube.CaptionTrack, preferred []string) youtube.CaptionTrack {
	desired := parseTags(preferred)
	if len(desired) == 0 {
		return tracks[0]
	}

	var authored []youtube.CaptionTrack
	for _, t := range tracks {
		if t.Kind != "asr" {
			authored = append(authored, t)
		}
	}

	if idx, ok := matchTracks(authored, desired); ok {
		return authored[idx]
	}
	if idx, ok := matchTracks(tracks, desired); ok {
		return tracks[idx]
	}
	return tracks[0]
}

// matchTracks returns the index of the best language match within tracks,
// or false when no track matches with any confidence.
func matchTracks(tracks []youtube.CaptionTrack, desired []language.Tag) (int, bool) {
	if len(tracks) == 0 {
		return 0, false
	}

	available := make([]language.Tag, 0, len(tracks))
	indexes := make([]int, 0, len(tracks))
	for i, t := range tracks {
		tag, err := language.Parse(t.Language)
		if err != nil {
			continue
		}
		available = append(available, tag)
		indexes = append(indexes, i)
	}
	if len(available) == 0 {
		return 0, false
	}

	_, idx, conf := language.NewMatcher(available).Match(desired...)
	if conf == language.No {
		return 0, false
	}
	return indexes[idx], true
}

func parseTags(codes []string) []language.Tag {
	tags := make([]language.Tag, 0, len(codes))
	for _, code := range codes {
		if tag, err := language.Parse(code); err == nil {
			tags = append(tags, tag)
		}
	}
	return tags
}
