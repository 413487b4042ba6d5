package spotify

import (
	"context"
	"errors"
	"fmt"

	"github.com/zmb3/spotify/v2"
)

const maxItemsPerRequest = 100

// PlaylistTrackIDs returns the IDs of every track in a playlist, in playlist
// order. Episodes and local files are skipped.
func (c *Client) PlaylistTrackIDs(ctx context.Context, playlistID string) ([]string, error) {
	page, err := c.api.GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(maxItemsPerRequest))
	if err != nil {
		return nil, fmt.Errorf("fetching playlist %s: %w", playlistID, err)
	}

	var ids []string
	for {
		for _, item := range page.Items {
			if item.IsLocal || item.Track.Track == nil {
				continue
			}
			ids = append(ids, item.Track.Track.ID.String())
		}

		err = c.api.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fetching next playlist page: %w", err)
		}
	}

	return ids, nil
}
