package mood

import (
	"fmt"
	"regexp"
	"strings"
)

// Suggestion is a song the model proposed, not yet matched to a track.
type Suggestion struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

func (s Suggestion) String() string {
	return s.Title + " by " + s.Artist
}

var (
	listMarker = regexp.MustCompile(`^\s*(?:\d+[.)\]:]\s*|[-*•]\s+)`)
	bySep      = regexp.MustCompile(`(?i)\s+by\s+`)
)

// ParseSuggestions extracts "Title by Artist" (or "Title - Artist") pairs
// from a model reply, one per line. Lines that do not parse are dropped;
// a reply with no parsable line yields ErrDecodingFailed.
func ParseSuggestions(text string) ([]Suggestion, error) {
	var out []Suggestion
	seen := make(map[string]bool)

	for _, line := range strings.Split(text, "\n") {
		s, ok := parseLine(line)
		if !ok {
			continue
		}
		key := strings.ToLower(s.Title + "\x00" + s.Artist)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no song lines in reply", ErrDecodingFailed)
	}
	return out, nil
}

func parseLine(line string) (Suggestion, bool) {
	line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
	if line == "" {
		return Suggestion{}, false
	}

	var title, artist string
	// The last " by " splits, so titles like "Stand by Me" survive.
	if locs := bySep.FindAllStringIndex(line, -1); len(locs) > 0 {
		last := locs[len(locs)-1]
		title, artist = line[:last[0]], line[last[1]:]
	} else if i := strings.Index(line, " - "); i >= 0 {
		title, artist = line[:i], line[i+3:]
	} else {
		return Suggestion{}, false
	}

	title, artist = unquote(title), unquote(artist)
	if title == "" || artist == "" {
		return Suggestion{}, false
	}
	return Suggestion{Title: title, Artist: artist}, true
}

func unquote(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"'“”*`))
}
