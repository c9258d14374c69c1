package source

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	billy "gopkg.in/src-d/go-billy.v4"
	"gopkg.in/src-d/go-billy.v4/memfs"
	git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/storage/memory"
)

// ErrArchiveTooLarge is returned when the zipped worktree exceeds the size limit
var ErrArchiveTooLarge = errors.New("archive exceeds size limit")

// GitSource clones a repository in memory and packs its worktree as a zip.
// A tag can be pinned with a URL fragment: https://host/user/repo.git#v1.0
type GitSource struct {
	depth    int
	maxBytes int64
}

// NewGitSource returns a shallow cloning source. maxBytes <= 0 disables the limit.
func NewGitSource(maxBytes int64) *GitSource {
	return &GitSource{
		depth:    1,
		maxBytes: maxBytes,
	}
}

// IsGitURL returns true for URLs pointing at a git repository
func IsGitURL(url string) bool {
	repoURL, _ := splitRef(url)
	return strings.HasSuffix(repoURL, ".git")
}

// Fetch clones url and returns the zipped worktree
func (s *GitSource) Fetch(ctx context.Context, url string) ([]byte, error) {
	repoURL, tag := splitRef(url)

	options := &git.CloneOptions{
		URL:          repoURL,
		Depth:        s.depth,
		SingleBranch: true,
	}
	if tag != "" {
		options.ReferenceName = plumbing.ReferenceName("refs/tags/" + tag)
	}

	worktree := memfs.New()
	_, err := git.CloneContext(ctx, memory.NewStorage(), worktree, options)
	if err != nil {
		return nil, fmt.Errorf("failed to clone %s: %w", repoURL, err)
	}

	archive, err := zipWorktree(worktree)
	if err != nil {
		return nil, err
	}
	if s.maxBytes > 0 && int64(len(archive)) > s.maxBytes {
		return nil, fmt.Errorf("%s: %w", repoURL, ErrArchiveTooLarge)
	}
	return archive, nil
}

func splitRef(url string) (repoURL, tag string) {
	if i := strings.LastIndex(url, "#"); i >= 0 {
		return url[:i], url[i+1:]
	}
	return url, ""
}

func zipWorktree(fs billy.Filesystem) ([]byte, error) {
	buf := new(bytes.Buffer)
	archive := zip.NewWriter(buf)

	if err := addDir(archive, fs, ""); err != nil {
		archive.Close()
		return nil, err
	}
	if err := archive.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize zip: %w", err)
	}

	return buf.Bytes(), nil
}

func addDir(archive *zip.Writer, fs billy.Filesystem, dir string) error {
	// go-git addresses the worktree root as ""
	entries, err := fs.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read %q: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.Name() == "." || entry.Name() == "" {
			continue
		}
		name := path.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := addDir(archive, fs, name); err != nil {
				return err
			}
			continue
		}

		if err := addFile(archive, fs, name); err != nil {
			return err
		}
	}
	return nil
}

func addFile(archive *zip.Writer, fs billy.Filesystem, name string) error {
	file, err := fs.Open(name)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer file.Close()

	w, err := archive.Create(name)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := io.Copy(w, file); err != nil {
		return fmt.Errorf("failed to copy %s: %w", name, err)
	}
	return nil
}
