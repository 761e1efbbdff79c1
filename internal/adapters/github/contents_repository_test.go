package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tripboard/core/internal/domain/entities"
)

// fakeContents is an in-memory contents API for a single file
type fakeContents struct {
	mu sync.Mutex

	content  []byte
	sha      string
	revision int

	// conflicts makes the next N PUTs fail with 409
	conflicts int
	// getStatus forces a status on GET when non-zero
	getStatus int

	gets []*http.Request
	puts []putContentsRequest
}

func (f *fakeContents) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if r.URL.Path != "/repos/octo/trips/contents/data/trip_data.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message":"Bad credentials"}`)
			return
		}

		switch r.Method {
		case http.MethodGet:
			f.gets = append(f.gets, r)
			if f.getStatus != 0 {
				w.WriteHeader(f.getStatus)
				fmt.Fprint(w, `{"message":"forced"}`)
				return
			}
			if f.content == nil {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"message":"Not Found"}`)
				return
			}
			json.NewEncoder(w).Encode(contentsResponse{
				Type:     "file",
				Name:     "trip_data.json",
				Path:     "data/trip_data.json",
				SHA:      f.sha,
				Encoding: "base64",
				Content:  wrap60(base64.StdEncoding.EncodeToString(f.content)),
			})

		case http.MethodPut:
			var req putContentsRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.puts = append(f.puts, req)

			if f.conflicts > 0 {
				f.conflicts--
				// someone else wrote in between
				f.revision++
				f.sha = fmt.Sprintf("sha-%d", f.revision)
				w.WriteHeader(http.StatusConflict)
				fmt.Fprint(w, `{"message":"is at sha-x but expected sha-y"}`)
				return
			}
			if req.SHA != f.sha {
				w.WriteHeader(http.StatusConflict)
				fmt.Fprint(w, `{"message":"sha mismatch"}`)
				return
			}

			data, err := base64.StdEncoding.DecodeString(req.Content)
			if err != nil {
				w.WriteHeader(http.StatusUnprocessableEntity)
				return
			}

			status := http.StatusOK
			if f.content == nil {
				status = http.StatusCreated
			}
			f.content = data
			f.revision++
			f.sha = fmt.Sprintf("sha-%d", f.revision)

			w.WriteHeader(status)
			fmt.Fprintf(w, `{"content":{"sha":%q},"commit":{"sha":"commit-%d"}}`, f.sha, f.revision)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func wrap60(s string) string {
	var b strings.Builder
	for len(s) > 60 {
		b.WriteString(s[:60])
		b.WriteByte('\n')
		s = s[60:]
	}
	b.WriteString(s)
	return b.String()
}

func newTestRepository(t *testing.T, fake *fakeContents, maxRetries int) *ContentsRepository {
	t.Helper()

	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	repo, err := NewContentsRepository(Options{
		Token:      "test-token",
		Owner:      "octo",
		Repo:       "trips",
		Path:       "data/trip_data.json",
		Branch:     "main",
		APIURL:     server.URL,
		Timeout:    5 * time.Second,
		MaxRetries: maxRetries,
	}, nil, nil)
	require.NoError(t, err)

	return repo
}

func Test_ContentsRepository_LoadMissing(t *testing.T) {
	repo := newTestRepository(t, &fakeContents{}, 3)

	_, err := repo.Load(context.Background())
	require.ErrorIs(t, err, entities.ErrDocumentNotFound)

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	require.Equal(t, http.StatusNotFound, remoteErr.StatusCode)
}

func Test_ContentsRepository_SaveThenLoad(t *testing.T) {
	ctx := context.Background()
	fake := &fakeContents{}
	repo := newTestRepository(t, fake, 3)

	doc := entities.NewDocument()
	doc.Notes = append(doc.Notes, strings.Repeat("long note ", 20))
	doc.Touch(time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))

	result, err := repo.Save(ctx, doc, "Add note")
	require.NoError(t, err)
	require.Equal(t, entities.BackendGitHub, result.Backend)
	require.Equal(t, "sha-1", result.Revision)
	require.Equal(t, 1, result.Attempts)
	require.Nil(t, result.Backup)

	require.Len(t, fake.puts, 1)
	require.Equal(t, "Add note", fake.puts[0].Message)
	require.Equal(t, "main", fake.puts[0].Branch)
	require.Empty(t, fake.puts[0].SHA, "creating a file carries no revision")

	for _, req := range fake.gets {
		require.Equal(t, "main", req.URL.Query().Get("ref"))
		require.Equal(t, "application/vnd.github+json", req.Header.Get("Accept"))
		require.Equal(t, apiVersion, req.Header.Get("X-GitHub-Api-Version"))
	}

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, doc.Notes, loaded.Notes)
	require.Equal(t, doc.LastUpdated, loaded.LastUpdated)

	_, err = repo.Save(ctx, loaded, "Second write")
	require.NoError(t, err)
	require.Equal(t, "sha-1", fake.puts[1].SHA, "update must carry the revision just read")
}

func Test_ContentsRepository_ConflictRetry(t *testing.T) {
	ctx := context.Background()
	fake := &fakeContents{content: []byte(`{"notes":[]}`), sha: "sha-0", conflicts: 2}
	repo := newTestRepository(t, fake, 3)

	result, err := repo.Save(ctx, entities.NewDocument(), "retry me")
	require.NoError(t, err)
	require.Equal(t, 3, result.Attempts)
	require.Len(t, fake.puts, 3)

	// every attempt re-reads the revision
	require.Equal(t, "sha-0", fake.puts[0].SHA)
	require.Equal(t, "sha-1", fake.puts[1].SHA)
	require.Equal(t, "sha-2", fake.puts[2].SHA)
}

func Test_ContentsRepository_ConflictExhausted(t *testing.T) {
	ctx := context.Background()
	fake := &fakeContents{content: []byte(`{}`), sha: "sha-0", conflicts: 10}
	repo := newTestRepository(t, fake, 2)

	_, err := repo.Save(ctx, entities.NewDocument(), "doomed")
	require.ErrorIs(t, err, entities.ErrRevisionConflict)
	require.Len(t, fake.puts, 3)

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	require.Equal(t, http.StatusConflict, remoteErr.StatusCode)
}

func Test_ContentsRepository_NoRetry(t *testing.T) {
	fake := &fakeContents{content: []byte(`{}`), sha: "sha-0", conflicts: 1}
	repo := newTestRepository(t, fake, 0)

	_, err := repo.Save(context.Background(), entities.NewDocument(), "once")
	require.ErrorIs(t, err, entities.ErrRevisionConflict)
	require.Len(t, fake.puts, 1)
}

func Test_ContentsRepository_RemoteFailure(t *testing.T) {
	ctx := context.Background()
	fake := &fakeContents{content: []byte(`{}`), sha: "sha-0", getStatus: http.StatusInternalServerError}
	repo := newTestRepository(t, fake, 3)

	_, err := repo.Load(ctx)
	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	require.Equal(t, http.StatusInternalServerError, remoteErr.StatusCode)
	require.Equal(t, "forced", remoteErr.Message)
	require.NotErrorIs(t, err, entities.ErrDocumentNotFound)

	_, err = repo.Save(ctx, entities.NewDocument(), "fails on revision fetch")
	require.ErrorAs(t, err, &remoteErr)
	require.Empty(t, fake.puts)
}

func Test_ContentsRepository_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	repo, err := NewContentsRepository(Options{
		Token:   "test-token",
		Owner:   "octo",
		Repo:    "trips",
		Path:    "data/trip_data.json",
		Branch:  "main",
		APIURL:  server.URL,
		Timeout: 200 * time.Millisecond,
	}, nil, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = repo.Load(context.Background())
	elapsed := time.Since(start)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotErrorIs(t, err, entities.ErrDocumentNotFound)
	require.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	require.Less(t, elapsed, 2*time.Second)

	start = time.Now()
	_, err = repo.Save(context.Background(), entities.NewDocument(), "times out")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 2*time.Second)
}

func Test_ContentsRepository_CorruptedContent(t *testing.T) {
	fake := &fakeContents{content: []byte(`["not", "an", "object"]`), sha: "sha-0"}
	repo := newTestRepository(t, fake, 3)

	_, err := repo.Load(context.Background())
	require.ErrorIs(t, err, entities.ErrDocumentCorrupted)
}

func Test_ContentsRepository_Options(t *testing.T) {
	_, err := NewContentsRepository(Options{}, nil, nil)
	require.ErrorIs(t, err, entities.ErrRemoteNotConfigured)

	_, err = NewContentsRepository(Options{Token: "x"}, nil, nil)
	require.Error(t, err)

	repo, err := NewContentsRepository(Options{Token: "x", Owner: "o", Repo: "r", Path: "/a/b.json", Branch: "dev"}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "https://api.github.com/repos/o/r/contents/a/b.json", repo.contentsURL())
	require.Equal(t, "github:o/r/a/b.json@dev", repo.Describe())
}
