package cli

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/feedsync/internal/cache"
)

// FetchResult is the outcome of one request through the cache.
type FetchResult struct {
	URL         string `json:"url"`
	Status      int    `json:"status"`
	Source      string `json:"source"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body"`
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <url>",
		Short: "GET a URL through the cache intermediary",
		Long: `Send one GET through the cache intermediary and print where the answer
came from (network, cache or fallback). A path is resolved against the
configured origin.

Examples:
  feedsync fetch /api/posts?page=1
  feedsync fetch http://localhost:3000/icons/logo.png --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			target := resolveURL(s.cfg.Cache.Origin, args[0])
			req, err := http.NewRequestWithContext(commandContext(cmd), http.MethodGet, target, nil)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid url", err)
			}
			resp, err := s.engine.HTTPClient().Do(req)
			if err != nil {
				return WrapExitError(ExitFailure, "request failed", err)
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read body", err)
			}

			result := FetchResult{
				URL:         target,
				Status:      resp.StatusCode,
				Source:      resp.Header.Get(cache.SourceHeader),
				ContentType: resp.Header.Get("Content-Type"),
				Body:        string(body),
			}
			return newFormatter(cmd, rootOpts).Render(result, func(w io.Writer) {
				fmt.Fprintf(w, "%d from %s\n", result.Status, result.Source)
				if result.Body != "" {
					fmt.Fprintln(w, result.Body)
				}
			})
		},
	}
}

func resolveURL(origin, target string) string {
	if strings.Contains(target, "://") {
		return target
	}
	return strings.TrimRight(origin, "/") + "/" + strings.TrimLeft(target, "/")
}
