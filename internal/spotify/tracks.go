package spotify

import (
	"context"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"
)

// Track retrieves metadata for a single track.
func (c *Client) Track(ctx context.Context, id string) (Track, error) {
	full, err := c.api.GetTrack(ctx, spotify.ID(id))
	if err != nil {
		return Track{}, fmt.Errorf("fetching track %s: %w", id, err)
	}
	return convertTrack(full), nil
}

// convertTrack converts a Spotify FullTrack to Track with artists joined by ", ".
func convertTrack(full *spotify.FullTrack) Track {
	artists := make([]string, len(full.Artists))
	for i, a := range full.Artists {
		artists[i] = a.Name
	}

	return Track{
		ID:         full.ID.String(),
		Name:       full.Name,
		Artist:     strings.Join(artists, ", "),
		Album:      full.Album.Name,
		DurationMs: int(full.Duration),
	}
}
