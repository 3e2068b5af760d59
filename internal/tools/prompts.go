package tools

import (
	"fmt"
	"strings"
	"time"

	"github.com/efikuta/youtube-knowledge-mcp/pkg/types"
)

// maxPromptChars bounds how much transcript or comment text goes into a
// single prompt. Longer inputs are truncated with a marker so the model
// knows the tail is missing.
const maxPromptChars = 24000

const (
	summarizeSystem = "You summarize video transcripts. Be faithful to the source; do not invent facts."

	chaptersSystem = "You segment video transcripts into chapters. Respond with JSON only: " +
		`an array of objects with "start" (seconds, number), "title" (string) and "summary" (string).`

	topicsSystem = "You identify the main topics discussed in video transcripts. Respond with JSON only: " +
		`an array of objects with "topic" (string), "keywords" (array of strings) and "summary" (string).`

	sentimentSystem = "You analyze the sentiment of video comments. Respond with JSON only: " +
		`an object with "overall" (one of "positive", "neutral", "negative"), "score" (-1 to 1, number) ` +
		`and "themes" (array of strings describing recurring viewer reactions).`
)

func summarizePrompt(transcript *types.Transcript, style string) string {
	var sb strings.Builder
	switch style {
	case "brief":
		sb.WriteString("Summarize the following transcript in at most three sentences.\n\n")
	case "bullet":
		sb.WriteString("Summarize the following transcript as a bullet list of key points.\n\n")
	default:
		sb.WriteString("Summarize the following transcript in a few short paragraphs.\n\n")
	}
	sb.WriteString("Transcript:\n")
	sb.WriteString(clampText(transcript.Text()))
	return sb.String()
}

func chaptersPrompt(transcript *types.Transcript) string {
	var sb strings.Builder
	sb.WriteString("Split this transcript into chapters. Use the cue timestamps for chapter starts.\n\n")
	for _, seg := range transcript.Segments {
		line := fmt.Sprintf("[%s] %s\n", formatOffset(seg.Start), seg.Text)
		if sb.Len()+len(line) > maxPromptChars {
			sb.WriteString("[transcript truncated]\n")
			break
		}
		sb.WriteString(line)
	}
	return sb.String()
}

func topicsPrompt(transcript *types.Transcript) string {
	var sb strings.Builder
	sb.WriteString("Identify the main topics in this transcript and group related passages.\n\n")
	sb.WriteString("Transcript:\n")
	sb.WriteString(clampText(transcript.Text()))
	return sb.String()
}

func sentimentPrompt(comments []types.Comment) string {
	var sb strings.Builder
	sb.WriteString("Analyze the overall sentiment of these video comments.\n\n")
	for i, c := range comments {
		line := fmt.Sprintf("%d. %s\n", i+1, strings.ReplaceAll(c.Text, "\n", " "))
		if sb.Len()+len(line) > maxPromptChars {
			sb.WriteString("[comments truncated]\n")
			break
		}
		sb.WriteString(line)
	}
	return sb.String()
}

func clampText(text string) string {
	if len(text) <= maxPromptChars {
		return text
	}
	return text[:maxPromptChars] + "\n[transcript truncated]"
}

func formatOffset(d time.Duration) string {
	total := int(d.Seconds())
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// stripFences removes a markdown code fence around a JSON body, which some
// models emit even when asked for JSON only.
func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
