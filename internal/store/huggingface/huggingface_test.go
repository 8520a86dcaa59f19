package huggingface_test

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/store"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/store/huggingface"
)

const (
	testRepo  = "north-cloud/officiele-publicaties"
	testToken = "hf_test_token"
)

// fakeHub implements the Hub endpoints used by the store.
type fakeHub struct {
	t *testing.T

	mu            sync.Mutex
	uploadMode    string
	lfsHasObject  bool
	createStatus  int
	commitStatus  int
	createBodies  []map[string]any
	commitLines   [][]map[string]any
	lfsUploads    map[string][]byte
	verified      []string
	authorization []string

	server *httptest.Server
}

func newFakeHub(t *testing.T) *fakeHub {
	t.Helper()

	h := &fakeHub{
		t:            t,
		uploadMode:   "regular",
		createStatus: http.StatusOK,
		commitStatus: http.StatusOK,
		lfsUploads:   make(map[string][]byte),
	}
	h.server = httptest.NewServer(http.HandlerFunc(h.handle))
	t.Cleanup(h.server.Close)
	return h
}

func (h *fakeHub) handle(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !strings.HasPrefix(r.URL.Path, "/lfs-storage/") {
		h.authorization = append(h.authorization, r.Header.Get("Authorization"))
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/repos/create":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		h.createBodies = append(h.createBodies, body)
		w.WriteHeader(h.createStatus)
		_, _ = w.Write([]byte(`{"error":"You already created this dataset repo"}`))

	case r.Method == http.MethodPost && r.URL.Path == "/api/datasets/"+testRepo+"/preupload/main":
		var body struct {
			Files []map[string]any `json:"files"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		files := make([]map[string]any, 0, len(body.Files))
		for _, f := range body.Files {
			files = append(files, map[string]any{"path": f["path"], "uploadMode": h.uploadMode, "shouldIgnore": false})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"files": files})

	case r.Method == http.MethodPost && r.URL.Path == "/datasets/"+testRepo+".git/info/lfs/objects/batch":
		var body struct {
			Objects []struct {
				OID  string `json:"oid"`
				Size int64  `json:"size"`
			} `json:"objects"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		obj := body.Objects[0]
		out := map[string]any{"oid": obj.OID, "size": obj.Size}
		if !h.lfsHasObject {
			out["actions"] = map[string]any{
				"upload": map[string]any{"href": h.server.URL + "/lfs-storage/" + obj.OID + "?sig=secret"},
				"verify": map[string]any{"href": h.server.URL + "/lfs-verify"},
			}
		}
		w.Header().Set("Content-Type", "application/vnd.git-lfs+json")
		_ = json.NewEncoder(w).Encode(map[string]any{"objects": []any{out}})

	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/lfs-storage/"):
		data, _ := io.ReadAll(r.Body)
		h.lfsUploads[strings.TrimPrefix(r.URL.Path, "/lfs-storage/")] = data

	case r.Method == http.MethodPost && r.URL.Path == "/lfs-verify":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		h.verified = append(h.verified, body["oid"].(string))

	case r.Method == http.MethodPost && r.URL.Path == "/api/datasets/"+testRepo+"/commit/main":
		if h.commitStatus != http.StatusOK {
			w.WriteHeader(h.commitStatus)
			return
		}
		assert.Equal(h.t, "application/x-ndjson", r.Header.Get("Content-Type"))
		var lines []map[string]any
		scanner := bufio.NewScanner(r.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			var line map[string]any
			assert.NoError(h.t, json.Unmarshal(scanner.Bytes(), &line))
			lines = append(lines, line)
		}
		h.commitLines = append(h.commitLines, lines)
		_, _ = w.Write([]byte(`{"commitUrl":"https://hf.test/commit/abc","commitOid":"abc"}`))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newStore(t *testing.T, hub *fakeHub) *huggingface.Store {
	t.Helper()

	s, err := huggingface.New(huggingface.Config{
		Endpoint: hub.server.URL,
		RepoID:   testRepo,
		Token:    testToken,
	}, logger.NewNoOp())
	require.NoError(t, err)
	return s
}

func writeShard(t *testing.T, content string) (string, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "shard_000001_000003.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	sum := sha256.Sum256([]byte(content))
	return path, hex.EncodeToString(sum[:])
}

func TestEnsureContainer_CreatesDatasetRepo(t *testing.T) {
	t.Parallel()

	hub := newFakeHub(t)
	require.NoError(t, newStore(t, hub).EnsureContainer(context.Background()))

	hub.mu.Lock()
	defer hub.mu.Unlock()
	require.Len(t, hub.createBodies, 1)
	assert.Equal(t, "officiele-publicaties", hub.createBodies[0]["name"])
	assert.Equal(t, "north-cloud", hub.createBodies[0]["organization"])
	assert.Equal(t, "dataset", hub.createBodies[0]["type"])
	assert.Equal(t, "Bearer "+testToken, hub.authorization[0])
}

func TestEnsureContainer_ExistingRepoIsNotAnError(t *testing.T) {
	t.Parallel()

	hub := newFakeHub(t)
	hub.createStatus = http.StatusConflict

	require.NoError(t, newStore(t, hub).EnsureContainer(context.Background()))
}

func TestEnsureContainer_Unauthorized(t *testing.T) {
	t.Parallel()

	hub := newFakeHub(t)
	hub.createStatus = http.StatusUnauthorized

	err := newStore(t, hub).EnsureContainer(context.Background())
	var apiErr *huggingface.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.False(t, apiErr.Temporary())
}

func TestPut_RegularFileInlinedInCommit(t *testing.T) {
	t.Parallel()

	hub := newFakeHub(t)
	content := "{\"URL\":\"https://example.org/1\",\"Content\":\"één\",\"Source\":\"s\"}\n"
	path, _ := writeShard(t, content)

	err := newStore(t, hub).Put(context.Background(), "shards/shard_000001_000003.jsonl", store.Object{LocalPath: path})
	require.NoError(t, err)

	hub.mu.Lock()
	defer hub.mu.Unlock()

	require.Len(t, hub.commitLines, 1)
	lines := hub.commitLines[0]
	require.Len(t, lines, 2)
	assert.Equal(t, "header", lines[0]["key"])
	assert.Equal(t, "Upload shards/shard_000001_000003.jsonl", lines[0]["value"].(map[string]any)["summary"])

	assert.Equal(t, "file", lines[1]["key"])
	value := lines[1]["value"].(map[string]any)
	assert.Equal(t, "shards/shard_000001_000003.jsonl", value["path"])
	assert.Equal(t, "base64", value["encoding"])
	decoded, err := base64.StdEncoding.DecodeString(value["content"].(string))
	require.NoError(t, err)
	assert.Equal(t, content, string(decoded))
	assert.Empty(t, hub.lfsUploads)
}

func TestPut_LFSUploadThenCommitPointer(t *testing.T) {
	t.Parallel()

	hub := newFakeHub(t)
	hub.uploadMode = "lfs"
	content := strings.Repeat("{\"URL\":null,\"Content\":\"x\",\"Source\":\"s\"}\n", 100)
	path, oid := writeShard(t, content)

	err := newStore(t, hub).Put(context.Background(), "shards/shard_000001_000101.jsonl", store.Object{LocalPath: path})
	require.NoError(t, err)

	hub.mu.Lock()
	defer hub.mu.Unlock()

	assert.Equal(t, content, string(hub.lfsUploads[oid]))
	assert.Equal(t, []string{oid}, hub.verified)

	require.Len(t, hub.commitLines, 1)
	entry := hub.commitLines[0][1]
	assert.Equal(t, "lfsFile", entry["key"])
	value := entry["value"].(map[string]any)
	assert.Equal(t, oid, value["oid"])
	assert.Equal(t, "sha256", value["algo"])
	assert.InDelta(t, float64(len(content)), value["size"], 0)
}

func TestPut_LFSObjectAlreadyStored(t *testing.T) {
	t.Parallel()

	hub := newFakeHub(t)
	hub.uploadMode = "lfs"
	hub.lfsHasObject = true
	path, oid := writeShard(t, "{}\n")

	err := newStore(t, hub).Put(context.Background(), "shards/a.jsonl", store.Object{
		LocalPath: path,
		SHA256:    oid,
		Size:      3,
	})
	require.NoError(t, err)

	hub.mu.Lock()
	defer hub.mu.Unlock()

	assert.Empty(t, hub.lfsUploads)
	require.Len(t, hub.commitLines, 1)
}

func TestPut_CommitServerErrorIsTemporary(t *testing.T) {
	t.Parallel()

	hub := newFakeHub(t)
	hub.commitStatus = http.StatusServiceUnavailable
	path, _ := writeShard(t, "{}\n")

	err := newStore(t, hub).Put(context.Background(), "shards/a.jsonl", store.Object{LocalPath: path})
	var apiErr *huggingface.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Temporary())
}

func TestPut_MissingFile(t *testing.T) {
	t.Parallel()

	hub := newFakeHub(t)
	err := newStore(t, hub).Put(context.Background(), "shards/a.jsonl", store.Object{
		LocalPath: filepath.Join(t.TempDir(), "missing.jsonl"),
	})
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLocation(t *testing.T) {
	t.Parallel()

	hub := newFakeHub(t)
	assert.Equal(t,
		hub.server.URL+"/datasets/"+testRepo+"/blob/main/shards/a.jsonl",
		newStore(t, hub).Location("shards/a.jsonl"))
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  huggingface.Config
	}{
		{name: "missing token", cfg: huggingface.Config{RepoID: testRepo}},
		{name: "bare repo name", cfg: huggingface.Config{RepoID: "dataset", Token: testToken}},
		{name: "nested repo", cfg: huggingface.Config{RepoID: "a/b/c", Token: testToken}},
		{name: "bad repo type", cfg: huggingface.Config{RepoID: testRepo, Token: testToken, RepoType: "bucket"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := huggingface.New(tt.cfg, logger.NewNoOp())
			require.Error(t, err)
		})
	}
}
