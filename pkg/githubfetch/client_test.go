package githubfetch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseRepoURL(t *testing.T) {
	cases := []struct {
		url         string
		owner, repo string
		wantErr     bool
	}{
		{url: "https://github.com/octocat/hello-world", owner: "octocat", repo: "hello-world"},
		{url: "https://github.com/octocat/hello-world.git", owner: "octocat", repo: "hello-world"},
		{url: "git@github.com/octocat/hello.world", owner: "octocat", repo: "hello.world"},
		{url: "https://gitlab.com/octocat/hello", wantErr: true},
	}

	for _, tc := range cases {
		owner, repo, err := ParseRepoURL(tc.url)
		if tc.wantErr {
			require.Error(t, err, tc.url)
			continue
		}
		require.NoError(t, err, tc.url)
		require.Equal(t, tc.owner, owner)
		require.Equal(t, tc.repo, repo)
	}
}

func TestWantPath(t *testing.T) {
	require.True(t, wantPath("src/main.go"))
	require.True(t, wantPath("README.md"))
	require.True(t, wantPath("Makefile"))
	require.False(t, wantPath("node_modules/react/index.js"))
	require.False(t, wantPath("dist/bundle.js"))
	require.False(t, wantPath("photo.png"))
}

func TestFetchRepositoryFilesSortedAndCapped(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/demo", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"default_branch": "trunk"})
	})
	mux.HandleFunc("/repos/octocat/demo/git/trees/trunk", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"tree": []map[string]interface{}{
				{"path": "zeta.go", "type": "blob", "size": 10},
				{"path": "alpha.go", "type": "blob", "size": 12},
				{"path": "docs", "type": "tree"},
				{"path": "node_modules/x.js", "type": "blob", "size": 4},
				{"path": "beta.go", "type": "blob", "size": 7},
			},
		})
	})
	mux.HandleFunc("/repos/octocat/demo/contents/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"type":     "file",
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte("package main")),
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient("", zerolog.Nop()).WithBaseURL(server.URL)
	files, err := client.FetchRepositoryFiles(context.Background(), "https://github.com/octocat/demo", 2)
	require.NoError(t, err)
	require.Len(t, files, 2, "file ceiling applies")
	require.Equal(t, "alpha.go", files[0].Path, "output is sorted by path")
	require.Equal(t, "zeta.go", files[1].Path)
	require.Equal(t, "package main", files[0].Content)
}
