package source

import "context"

// Fetcher is implemented by every artifact source
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Router sends git repository URLs to the git source and anything else to
// the HTTP source.
type Router struct {
	HTTP Fetcher
	Git  Fetcher
}

// NewRouter returns a router over the default sources
func NewRouter(http Fetcher, git Fetcher) *Router {
	return &Router{HTTP: http, Git: git}
}

// Fetch picks a source for url and downloads it
func (r *Router) Fetch(ctx context.Context, url string) ([]byte, error) {
	if r.Git != nil && IsGitURL(url) {
		return r.Git.Fetch(ctx, url)
	}
	return r.HTTP.Fetch(ctx, url)
}
