package source

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/src-d/go-billy.v4/memfs"
	"gopkg.in/src-d/go-billy.v4/util"

	"github.com/blankon/submission-relay/pkg/httputil"
)

func TestHTTPSource_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/release.zip" {
			w.Write([]byte{0x50, 0x4B})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	s := NewHTTPSource(5*time.Second, 1024)

	data, err := s.Fetch(context.Background(), server.URL+"/release.zip")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x50, 0x4B}, data)

	_, err = s.Fetch(context.Background(), server.URL+"/missing.zip")
	var statusErr httputil.HTTPStatusError
	assert.True(t, errors.As(err, &statusErr))
}

func TestIsGitURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{url: "https://github.com/user/repo.git", want: true},
		{url: "https://github.com/user/repo.git#v1.0", want: true},
		{url: "https://github.com/user/repo/archive/refs/tags/v1.zip", want: false},
		{url: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, IsGitURL(tt.url))
		})
	}
}

func TestSplitRef(t *testing.T) {
	repo, tag := splitRef("https://github.com/user/repo.git#v1.0")
	assert.Equal(t, "https://github.com/user/repo.git", repo)
	assert.Equal(t, "v1.0", tag)

	repo, tag = splitRef("https://github.com/user/repo.git")
	assert.Equal(t, "https://github.com/user/repo.git", repo)
	assert.Equal(t, "", tag)
}

func TestZipWorktree(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "README.md", []byte("hello"), 0644))
	require.NoError(t, util.WriteFile(fs, "src/main.go", []byte("package main"), 0644))

	data, err := zipWorktree(fs)
	require.NoError(t, err)

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var names []string
	contents := map[string]string{}
	for _, f := range reader.File {
		names = append(names, f.Name)
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := ioutil.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		contents[f.Name] = string(b)
	}
	sort.Strings(names)

	assert.Equal(t, []string{"README.md", "src/main.go"}, names)
	assert.Equal(t, "hello", contents["README.md"])
	assert.Equal(t, "package main", contents["src/main.go"])
}

type stubFetcher struct {
	name  string
	calls []string
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	s.calls = append(s.calls, url)
	return []byte(s.name), nil
}

func TestRouter_Fetch(t *testing.T) {
	httpSource := &stubFetcher{name: "http"}
	gitSource := &stubFetcher{name: "git"}
	router := NewRouter(httpSource, gitSource)

	data, err := router.Fetch(context.Background(), "https://github.com/user/repo.git#v1")
	require.NoError(t, err)
	assert.Equal(t, "git", string(data))

	data, err = router.Fetch(context.Background(), "https://example/artifact")
	require.NoError(t, err)
	assert.Equal(t, "http", string(data))

	assert.Len(t, gitSource.calls, 1)
	assert.Len(t, httpSource.calls, 1)
}

func TestRouter_FetchWithoutGit(t *testing.T) {
	httpSource := &stubFetcher{name: "http"}
	router := NewRouter(httpSource, nil)

	data, err := router.Fetch(context.Background(), "https://github.com/user/repo.git")
	require.NoError(t, err)
	assert.Equal(t, "http", string(data))
}
