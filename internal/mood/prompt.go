package mood

import (
	"fmt"
	"strings"
)

const (
	classifySystemPrompt = "You are a helpful assistant that determines a user's mood from a list of statements."
	classifyInstruction  = "Determine the user's overall mood from these statements:"

	titleSystemPrompt   = "You are a creative assistant that names music playlists."
	suggestSystemPrompt = "You are a helpful assistant that recommends songs available on Spotify."
)

// BuildPrompt renders the classification prompt: the instruction, each
// statement numbered from 1 with its answer, then the list of allowed moods.
func BuildPrompt(responses []Response) string {
	var b strings.Builder
	b.WriteString(classifyInstruction)
	b.WriteString("\n")
	for i, r := range responses {
		fmt.Fprintf(&b, "%d) Question: %q\n   Answer: %q\n\n", i+1, r.Question, r.Answer)
	}
	b.WriteString("Please give me one of these moods: ")
	b.WriteString(moodList())
	b.WriteString(".\n")
	return b.String()
}

// moodList renders "Happy, Sad, Relaxed, Energetic, or Sleepy".
func moodList() string {
	names := make([]string, len(allMoods))
	for i, m := range allMoods {
		names[i] = string(m)
	}
	last := len(names) - 1
	return strings.Join(names[:last], ", ") + ", or " + names[last]
}

func titlePrompt(m Mood) string {
	return fmt.Sprintf("Create a short, catchy playlist title of 2 to 4 words for someone feeling %s. Reply with the title only.", m)
}

func suggestPrompt(m Mood, n int) string {
	return fmt.Sprintf("Based on the mood '%s', suggest a Spotify playlist with %d songs. "+
		"Format: one song per line as Title by Artist. Reply with the list only.", m, n)
}
