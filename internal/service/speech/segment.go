// Package speech turns reply text into telephony audio: it segments the
// text for pipelined synthesis, fetches segments concurrently, and
// delivers audio to the sink strictly in order with immediate
// cancellation for barge-in.
package speech

import (
	"regexp"
	"strings"
)

const (
	// refineThreshold is the segment length above which a sentence is
	// split again on commas, dashes, or conjunctions.
	refineThreshold = 50

	// Grouping band: flush a group at groupMax, or at groupMin when the
	// next segment would overflow the band.
	groupMin = 30
	groupMax = 80

	// Oversize comma lists that survive grouping get re-split into
	// sub-lists below listChunkMax characters.
	listSplitThreshold = 200
	listChunkMax       = 100
)

var (
	sentenceBoundary = regexp.MustCompile(`(?:[.!?])\s+`)
	conjunctionSplit = regexp.MustCompile(`(?i)\s(and|but|with|which)\s`)
)

// pronunciationFixes expand symbols the synthesizer mispronounces.
var pronunciationFixes = strings.NewReplacer(
	"%", " percent",
	"₹", " rupees ",
	"Rs.", " rupees ",
	"sq.ft", "square feet",
	"sqft", "square feet",
	"*", " ",
)

// NormalizeSpokenText applies pronunciation fixes before segmentation.
func NormalizeSpokenText(text string) string {
	return pronunciationFixes.Replace(text)
}

// SegmentText splits reply text into speakable segments: sentence split,
// long-sentence refinement, grouping into the target size band with a
// small first segment, then oversize list splitting.
func SegmentText(text string) []string {
	text = strings.TrimSpace(NormalizeSpokenText(text))
	if text == "" {
		return nil
	}
	refined := refineSentences(splitSentences(text))
	grouped := groupSegments(refined)
	return splitOversizeLists(grouped)
}

func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		// Keep the terminator, drop the trailing whitespace.
		out = append(out, strings.TrimSpace(text[last:loc[0]+1]))
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// refineSentences splits long sentences at natural pauses so each
// synthesis request stays small. First separator class that matches
// wins: comma, then dash, then conjunction.
func refineSentences(sentences []string) []string {
	var out []string
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if len(s) <= refineThreshold {
			out = append(out, s)
			continue
		}

		var parts []string
		switch {
		case strings.Contains(s, ", "):
			parts = strings.Split(s, ", ")
			for i := 0; i < len(parts)-1; i++ {
				parts[i] += ","
			}
		case strings.Contains(s, " - "):
			parts = strings.SplitAfter(s, " - ")
		case conjunctionSplit.MatchString(s):
			marked := conjunctionSplit.ReplaceAllString(s, " $1| ")
			parts = strings.Split(marked, "| ")
		default:
			parts = []string{s}
		}
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// groupSegments merges adjacent short segments into the target band.
// The first segment is always flushed alone so playback starts fast.
func groupSegments(segments []string) []string {
	var out []string
	var group strings.Builder
	for i, s := range segments {
		if len(out) == 0 && group.Len() == 0 {
			out = append(out, s)
			continue
		}

		if group.Len() > 0 {
			group.WriteByte(' ')
		}
		group.WriteString(s)

		flush := false
		switch {
		case group.Len() >= groupMax:
			flush = true
		case group.Len() >= groupMin:
			if i+1 < len(segments) {
				if group.Len()+len(segments[i+1]) > groupMax {
					flush = true
				}
			} else {
				flush = true
			}
		case i == len(segments)-1:
			flush = true
		}
		if flush {
			out = append(out, group.String())
			group.Reset()
		}
	}
	if group.Len() > 0 {
		out = append(out, group.String())
	}
	return out
}

// splitOversizeLists breaks comma lists that outgrew the band into
// sub-lists small enough for one request each.
func splitOversizeLists(segments []string) []string {
	var out []string
	for _, s := range segments {
		if len(s) <= listSplitThreshold || !strings.Contains(s, ",") {
			out = append(out, s)
			continue
		}
		var chunk strings.Builder
		for _, item := range strings.Split(s, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			if chunk.Len() > 0 && chunk.Len()+len(item) >= listChunkMax {
				out = append(out, strings.TrimSuffix(chunk.String(), ","))
				chunk.Reset()
			}
			if chunk.Len() > 0 {
				chunk.WriteByte(' ')
			}
			chunk.WriteString(item)
			chunk.WriteByte(',')
		}
		if chunk.Len() > 0 {
			out = append(out, strings.TrimSuffix(chunk.String(), ","))
		}
	}
	return out
}
