package spotify

// Track contains the metadata logged alongside a fetched analysis.
type Track struct {
	ID         string
	Name       string
	Artist     string // Comma-separated artist names
	Album      string
	DurationMs int
}
