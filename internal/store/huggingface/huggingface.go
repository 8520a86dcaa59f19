package huggingface

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/store"
)

const (
	uploadModeLFS   = "lfs"
	sampleSize      = 512
	maxErrorBody    = 4 * 1024
	contentTypeJSON = "application/json"
	contentTypeLFS  = "application/vnd.git-lfs+json"
	contentTypeNDJ  = "application/x-ndjson"
)

// Store commits files to one Hub repository.
type Store struct {
	cfg        Config
	httpClient *http.Client
	logger     logger.Interface
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Store) { s.httpClient = hc }
}

// New creates a Hugging Face store.
func New(cfg Config, log logger.Interface, opts ...Option) (*Store, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNoOp()
	}

	s := &Store{cfg: cfg, httpClient: &http.Client{}, logger: log}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name implements store.Store.
func (s *Store) Name() string { return store.BackendHuggingFace }

// EnsureContainer creates the repository. An existing repository is not an error.
func (s *Store) EnsureContainer(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	namespace, name, _ := strings.Cut(s.cfg.RepoID, "/")
	payload := map[string]any{
		"name":         name,
		"organization": namespace,
		"private":      s.cfg.Private,
	}
	if s.cfg.RepoType != "model" {
		payload["type"] = s.cfg.RepoType
	}

	err := s.doJSON(ctx, http.MethodPost, s.cfg.Endpoint+"/api/repos/create", payload, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create repo %s: %w", s.cfg.RepoID, err)
	}

	s.logger.Info("Created Hugging Face repository", "repo_id", s.cfg.RepoID, "repo_type", s.cfg.RepoType)
	return nil
}

// Put commits the object file at remotePath. Files the Hub routes to LFS are
// uploaded through the LFS batch API first.
func (s *Store) Put(ctx context.Context, remotePath string, obj store.Object) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	size, oid, sample, err := describeFile(obj)
	if err != nil {
		return err
	}

	mode, err := s.preupload(ctx, remotePath, size, sample)
	if err != nil {
		return fmt.Errorf("preupload %s: %w", remotePath, err)
	}

	var entry commitLine
	if mode == uploadModeLFS {
		if err = s.uploadLFS(ctx, obj.LocalPath, oid, size); err != nil {
			return fmt.Errorf("lfs upload %s: %w", remotePath, err)
		}
		entry = commitLine{Key: "lfsFile", Value: lfsFileValue{Path: remotePath, Algo: "sha256", OID: oid, Size: size}}
	} else {
		content, readErr := os.ReadFile(obj.LocalPath)
		if readErr != nil {
			return fmt.Errorf("read %s: %w", obj.LocalPath, readErr)
		}
		entry = commitLine{Key: "file", Value: fileValue{
			Path:     remotePath,
			Content:  base64.StdEncoding.EncodeToString(content),
			Encoding: "base64",
		}}
	}

	commitOID, err := s.commit(ctx, remotePath, entry)
	if err != nil {
		return fmt.Errorf("commit %s: %w", remotePath, err)
	}

	s.logger.Debug("Committed shard to Hugging Face",
		"repo_id", s.cfg.RepoID,
		"path", remotePath,
		"upload_mode", mode,
		"commit", commitOID)

	return nil
}

// Location returns the web URL of remotePath.
func (s *Store) Location(remotePath string) string {
	return fmt.Sprintf("%s/%s%s/blob/%s/%s", s.cfg.Endpoint, s.typePrefix(), s.cfg.RepoID, s.cfg.Revision, remotePath)
}

func (s *Store) typePrefix() string {
	if s.cfg.RepoType == "model" {
		return ""
	}
	return s.cfg.RepoType + "s/"
}

func (s *Store) apiURL(suffix string) string {
	return fmt.Sprintf("%s/api/%ss/%s/%s", s.cfg.Endpoint, s.cfg.RepoType, s.cfg.RepoID, suffix)
}

type preuploadFile struct {
	Path         string `json:"path"`
	Sample       string `json:"sample,omitempty"`
	Size         int64  `json:"size,omitempty"`
	UploadMode   string `json:"uploadMode,omitempty"`
	ShouldIgnore bool   `json:"shouldIgnore,omitempty"`
}

type preuploadBody struct {
	Files []preuploadFile `json:"files"`
}

func (s *Store) preupload(ctx context.Context, remotePath string, size int64, sample []byte) (string, error) {
	req := preuploadBody{Files: []preuploadFile{{
		Path:   remotePath,
		Sample: base64.StdEncoding.EncodeToString(sample),
		Size:   size,
	}}}

	var resp preuploadBody
	if err := s.doJSON(ctx, http.MethodPost, s.apiURL("preupload/"+s.cfg.Revision), req, &resp); err != nil {
		return "", err
	}
	for _, f := range resp.Files {
		if f.Path == remotePath {
			return f.UploadMode, nil
		}
	}
	return "regular", nil
}

type lfsAction struct {
	Href   string            `json:"href"`
	Header map[string]string `json:"header,omitempty"`
}

type lfsObject struct {
	OID     string               `json:"oid"`
	Size    int64                `json:"size"`
	Actions map[string]lfsAction `json:"actions,omitempty"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type lfsBatch struct {
	Operation string      `json:"operation,omitempty"`
	Transfers []string    `json:"transfers,omitempty"`
	HashAlgo  string      `json:"hash_algo,omitempty"`
	Ref       *lfsRef     `json:"ref,omitempty"`
	Objects   []lfsObject `json:"objects"`
}

type lfsRef struct {
	Name string `json:"name"`
}

func (s *Store) uploadLFS(ctx context.Context, localPath, oid string, size int64) error {
	batchURL := fmt.Sprintf("%s/%s%s.git/info/lfs/objects/batch", s.cfg.Endpoint, s.typePrefix(), s.cfg.RepoID)
	req := lfsBatch{
		Operation: "upload",
		Transfers: []string{"basic"},
		HashAlgo:  "sha256",
		Ref:       &lfsRef{Name: "refs/heads/" + s.cfg.Revision},
		Objects:   []lfsObject{{OID: oid, Size: size}},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode lfs batch: %w", err)
	}

	var resp lfsBatch
	headers := map[string]string{"Accept": contentTypeLFS}
	err = s.do(ctx, call{
		method:      http.MethodPost,
		url:         batchURL,
		contentType: contentTypeLFS,
		body:        bytes.NewReader(body),
		size:        -1,
		headers:     headers,
	}, &resp)
	if err != nil {
		return err
	}
	if len(resp.Objects) == 0 {
		return errors.New("lfs batch returned no objects")
	}

	obj := resp.Objects[0]
	if obj.Error != nil {
		return fmt.Errorf("lfs batch: %d %s", obj.Error.Code, obj.Error.Message)
	}

	upload, ok := obj.Actions["upload"]
	if !ok {
		// Object already stored.
		return nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	err = s.do(ctx, call{
		method:      http.MethodPut,
		url:         upload.Href,
		contentType: "application/octet-stream",
		body:        f,
		size:        size,
		headers:     upload.Header,
		presigned:   true,
	}, nil)
	if err != nil {
		return err
	}

	if verify, hasVerify := obj.Actions["verify"]; hasVerify {
		verifyBody, _ := json.Marshal(lfsObject{OID: oid, Size: size})
		err = s.do(ctx, call{
			method:      http.MethodPost,
			url:         verify.Href,
			contentType: contentTypeLFS,
			body:        bytes.NewReader(verifyBody),
			size:        -1,
			headers:     verify.Header,
		}, nil)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
	}

	return nil
}

type commitLine struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type commitHeader struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
}

type fileValue struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type lfsFileValue struct {
	Path string `json:"path"`
	Algo string `json:"algo"`
	OID  string `json:"oid"`
	Size int64  `json:"size"`
}

type commitResponse struct {
	CommitURL string `json:"commitUrl"`
	CommitOID string `json:"commitOid"`
}

func (s *Store) commit(ctx context.Context, remotePath string, entry commitLine) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	summary := strings.ReplaceAll(s.cfg.CommitMessage, "{path}", remotePath)
	if err := enc.Encode(commitLine{Key: "header", Value: commitHeader{Summary: summary}}); err != nil {
		return "", fmt.Errorf("encode commit header: %w", err)
	}
	if err := enc.Encode(entry); err != nil {
		return "", fmt.Errorf("encode commit entry: %w", err)
	}

	var resp commitResponse
	err := s.do(ctx, call{
		method:      http.MethodPost,
		url:         s.apiURL("commit/" + s.cfg.Revision),
		contentType: contentTypeNDJ,
		body:        &buf,
		size:        -1,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.CommitOID, nil
}

func (s *Store) doJSON(ctx context.Context, method, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return s.do(ctx, call{method: method, url: url, contentType: contentTypeJSON, body: bytes.NewReader(body), size: -1}, out)
}

// call is one HTTP exchange with the Hub or a transfer URL it handed out.
type call struct {
	method      string
	url         string
	contentType string
	body        io.Reader
	// size is the body length; negative leaves it to the transport.
	size    int64
	headers map[string]string
	// presigned calls go to transfer URLs and carry no token.
	presigned bool
}

func (s *Store) do(ctx context.Context, c call, out any) error {
	req, err := http.NewRequestWithContext(ctx, c.method, c.url, c.body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.size >= 0 {
		req.ContentLength = c.size
	}
	req.Header.Set("Content-Type", c.contentType)
	if !c.presigned {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", c.method, redact(c.url), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &APIError{
			Method:     c.method,
			URL:        redact(c.url),
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// redact strips the query string, which carries signatures on transfer URLs.
func redact(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}

func errorMessage(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(data))
}

// describeFile returns size, sha256 and the leading sample of the object file,
// reusing the digest carried by the object when present.
func describeFile(obj store.Object) (int64, string, []byte, error) {
	f, err := os.Open(obj.LocalPath)
	if err != nil {
		return 0, "", nil, fmt.Errorf("open %s: %w", obj.LocalPath, err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	sample, err := reader.Peek(sampleSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return 0, "", nil, fmt.Errorf("read %s: %w", obj.LocalPath, err)
	}
	sample = append([]byte(nil), sample...)

	if obj.SHA256 != "" && obj.Size > 0 {
		return obj.Size, obj.SHA256, sample, nil
	}

	hash := sha256.New()
	size, err := io.Copy(hash, reader)
	if err != nil {
		return 0, "", nil, fmt.Errorf("hash %s: %w", obj.LocalPath, err)
	}
	return size, hex.EncodeToString(hash.Sum(nil)), sample, nil
}
