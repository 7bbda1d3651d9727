package spotify

// Profile is the signed-in user.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

// PlaylistSummary is one entry of the user's playlist list.
type PlaylistSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Track is a search hit reduced to what callers need.
type Track struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Artist string `json:"artist"` // Comma-separated artist names
}
