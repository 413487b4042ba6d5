package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/justestif/tonal-divider/internal/analysis"
	"github.com/justestif/tonal-divider/internal/auth"
	"github.com/justestif/tonal-divider/internal/db"
	"github.com/justestif/tonal-divider/internal/features"
	"github.com/justestif/tonal-divider/internal/spotify"
)

const playlistPrefix = "playlist:"

func newFetchCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "fetch <track-id|playlist:ID>...",
		Short: "Convert Spotify track analyses into a frames file",
		Long: "fetch pulls the audio analysis of each track (or of every track in\n" +
			"a playlist), converts its segments to frames and writes them as JSON\n" +
			"lines, one track after another.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating output file: %w", err)
				}
				defer f.Close()
				out = f
			}
			return a.fetch(cmd.Context(), args, out)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file (- for stdout)")
	return cmd
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the cached Spotify token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			authenticator, err := a.authenticator()
			if err != nil {
				return err
			}
			if err := authenticator.Logout(); err != nil {
				return fmt.Errorf("removing cached token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cached token removed")
			return nil
		},
	}
}

func (a *app) authenticator() (*auth.Authenticator, error) {
	cache, err := auth.DefaultTokenCache(a.cfg.Spotify.ClientID)
	if err != nil {
		return nil, fmt.Errorf("locating token cache: %w", err)
	}
	authenticator, err := auth.New(a.cfg.Spotify.ClientID, a.cfg.Spotify.ClientSecret,
		auth.WithTokenCache(cache),
		auth.WithLogger(a.logger),
	)
	if errors.Is(err, auth.ErrMissingCredentials) {
		return nil, fmt.Errorf("%w: set TONAL_SPOTIFY_CLIENT_ID and TONAL_SPOTIFY_CLIENT_SECRET", err)
	}
	return authenticator, err
}

func (a *app) fetch(ctx context.Context, targets []string, out io.Writer) error {
	authenticator, err := a.authenticator()
	if err != nil {
		return err
	}
	api, err := authenticator.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("authenticating with Spotify: %w", err)
	}
	client := spotify.New(api)

	trackIDs, err := expandTargets(ctx, client, targets)
	if err != nil {
		return err
	}
	if len(trackIDs) == 0 {
		return errors.New("no tracks to fetch")
	}

	var fetcher analysis.FrameFetcher = client
	if a.cfg.Database.URL != "" {
		database, err := db.New(ctx, a.cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer database.Close()
		if err := database.EnsureSchema(ctx); err != nil {
			return err
		}
		fetcher = analysis.NewCachedFetcher(database.Analyses(), client,
			analysis.WithTTL(a.cfg.Database.CacheTTL),
			analysis.WithCacheLogger(a.logger),
		)
	}

	svc := analysis.NewService(fetcher,
		analysis.WithConcurrency(a.cfg.Spotify.Concurrency),
		analysis.WithLogger(a.logger),
	)
	return writeAnalyses(ctx, svc, trackIDs, out, a.logger)
}

// playlistLister is the part of *spotify.Client target expansion needs.
type playlistLister interface {
	PlaylistTrackIDs(ctx context.Context, playlistID string) ([]string, error)
}

// expandTargets replaces every playlist:ID argument with the playlist's
// tracks, keeping argument order.
func expandTargets(ctx context.Context, lister playlistLister, targets []string) ([]string, error) {
	var ids []string
	for _, t := range targets {
		playlistID, ok := strings.CutPrefix(t, playlistPrefix)
		if !ok {
			ids = append(ids, t)
			continue
		}
		if playlistID == "" {
			return nil, fmt.Errorf("empty playlist ID in %q", t)
		}
		tracks, err := lister.PlaylistTrackIDs(ctx, playlistID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, tracks...)
	}
	return ids, nil
}

// frameFetcher is the part of *analysis.Service writeAnalyses needs.
type frameFetcher interface {
	FetchFramesForTracks(ctx context.Context, trackIDs []string) ([]analysis.TrackFrames, error)
}

// writeAnalyses fetches every track and writes the joined frames. Tracks that
// fail are skipped; it fails only when none succeed.
func writeAnalyses(ctx context.Context, svc frameFetcher, trackIDs []string, out io.Writer, logger *zap.Logger) error {
	results, err := svc.FetchFramesForTracks(ctx, trackIDs)
	if err != nil {
		return fmt.Errorf("fetching analyses: %w", err)
	}

	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
		}
	}
	if failed == len(results) {
		return fmt.Errorf("all %d tracks failed: %w", failed, results[0].Error)
	}

	frames := analysis.Concat(results)
	if err := features.WriteFrames(out, frames); err != nil {
		return fmt.Errorf("writing frames: %w", err)
	}

	logger.Info("fetched analyses",
		zap.Int("tracks", len(results)-failed),
		zap.Int("failed", failed),
		zap.Int("frames", len(frames)))
	return nil
}
