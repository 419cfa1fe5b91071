package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MKhiriev/go-confluence-sync/internal/fingerprint"
	"github.com/MKhiriev/go-confluence-sync/internal/logger"
	"github.com/MKhiriev/go-confluence-sync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, handler http.Handler) (RemoteStore, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := NewConfluenceStore(ConfluenceConfig{
		BaseURL:    srv.URL,
		Username:   "sync-bot@example.com",
		APIToken:   "token",
		SpaceKey:   "DOCS",
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		RetryBase:  time.Millisecond,
	}, logger.Nop())

	return store, srv
}

func spacesHandler(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, `{"results":[{"id":"111","key":"DOCS"}]}`)
}

// ─── List ───

func TestConfluenceStore_List(t *testing.T) {
	t.Run("paginates via next link and fingerprints bodies", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/wiki/api/v2/spaces", spacesHandler)
		mux.HandleFunc("/wiki/api/v2/pages", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "111", r.URL.Query().Get("space-id"))
			assert.Equal(t, "storage", r.URL.Query().Get("body-format"))
			fmt.Fprint(w, `{
				"results":[{"id":"p1","title":"First","version":{"number":3},"body":{"storage":{"value":"<p>one</p>"}}}],
				"_links":{"next":"/wiki/api/v2/pages/page-two"}
			}`)
		})
		mux.HandleFunc("/wiki/api/v2/pages/page-two", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{
				"results":[{"id":"p2","title":"Second","version":{"number":7},"body":{"storage":{"value":"<p>two</p>"}}}],
				"_links":{}
			}`)
		})

		store, _ := newTestStore(t, mux)

		states, err := store.List(context.Background())
		require.NoError(t, err)
		require.Len(t, states, 2)

		wantHash := fingerprint.Sum(models.PageDocument{Title: "First", Body: "<p>one</p>"}.CanonicalContent())
		assert.Equal(t, models.RemotePageState{RemoteID: "p1", Title: "First", Version: 3, Hash: wantHash}, states[0])
		assert.Equal(t, "p2", states[1].RemoteID)
		assert.EqualValues(t, 7, states[1].Version)
	})

	t.Run("unknown space key", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/wiki/api/v2/spaces", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"results":[]}`)
		})

		store, _ := newTestStore(t, mux)

		_, err := store.List(context.Background())
		assert.ErrorIs(t, err, ErrSpaceNotFound)
	})

	t.Run("space id is cached across calls", func(t *testing.T) {
		var spaceCalls atomic.Int64
		mux := http.NewServeMux()
		mux.HandleFunc("/wiki/api/v2/spaces", func(w http.ResponseWriter, r *http.Request) {
			spaceCalls.Add(1)
			spacesHandler(w, r)
		})
		mux.HandleFunc("/wiki/api/v2/pages", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"results":[],"_links":{}}`)
		})

		store, _ := newTestStore(t, mux)

		_, err := store.List(context.Background())
		require.NoError(t, err)
		_, err = store.List(context.Background())
		require.NoError(t, err)

		assert.EqualValues(t, 1, spaceCalls.Load())
	})
}

// ─── Get ───

func TestConfluenceStore_Get(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/wiki/api/v2/pages/p1", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "storage", r.URL.Query().Get("body-format"))
			user, token, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "sync-bot@example.com", user)
			assert.Equal(t, "token", token)
			fmt.Fprint(w, `{"id":"p1","title":"First","version":{"number":4},"body":{"storage":{"value":"<p>body</p>"}}}`)
		})

		store, _ := newTestStore(t, mux)

		page, err := store.Get(context.Background(), "p1")
		require.NoError(t, err)
		assert.Equal(t, models.RemotePage{RemoteID: "p1", Title: "First", Body: "<p>body</p>", Version: 4}, page)
	})

	t.Run("missing page", func(t *testing.T) {
		store, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		_, err := store.Get(context.Background(), "gone")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("bad credentials", func(t *testing.T) {
		store, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))

		_, err := store.Get(context.Background(), "p1")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

// ─── Create / Update ───

func TestConfluenceStore_Create(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/api/v2/spaces", spacesHandler)
	mux.HandleFunc("/wiki/api/v2/pages", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "111", payload["spaceId"])
		assert.Equal(t, "New Page", payload["title"])

		fmt.Fprint(w, `{"id":"p9","title":"New Page","version":{"number":1}}`)
	})

	store, _ := newTestStore(t, mux)

	state, err := store.Create(context.Background(), "New Page", "<p>hello</p>")
	require.NoError(t, err)
	assert.Equal(t, "p9", state.RemoteID)
	assert.EqualValues(t, 1, state.Version)
	assert.Equal(t, fingerprint.Sum(models.PageDocument{Title: "New Page", Body: "<p>hello</p>"}.CanonicalContent()), state.Hash)
}

func TestConfluenceStore_Update(t *testing.T) {
	t.Run("bumps version with expected precondition", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/wiki/api/v2/pages/p1", func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPut, r.Method)

			var payload struct {
				Version struct {
					Number int64 `json:"number"`
				} `json:"version"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.EqualValues(t, 5, payload.Version.Number)

			fmt.Fprint(w, `{"id":"p1","title":"First","version":{"number":5}}`)
		})

		store, _ := newTestStore(t, mux)

		version, err := store.Update(context.Background(), "p1", "First", "<p>new</p>", 4)
		require.NoError(t, err)
		assert.EqualValues(t, 5, version)
	})

	t.Run("stale expected version", func(t *testing.T) {
		store, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"errors":[{"title":"Version conflict"}]}`)
		}))

		_, err := store.Update(context.Background(), "p1", "First", "<p>new</p>", 2)
		assert.ErrorIs(t, err, ErrVersionConflict)
	})

	t.Run("page deleted underneath", func(t *testing.T) {
		store, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		_, err := store.Update(context.Background(), "p1", "First", "<p>new</p>", 2)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

// ─── Delete ───

func TestConfluenceStore_Delete(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		store, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodDelete, r.Method)
			w.WriteHeader(http.StatusNoContent)
		}))

		assert.NoError(t, store.Delete(context.Background(), "p1"))
	})

	t.Run("already deleted is not an error", func(t *testing.T) {
		store, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		assert.NoError(t, store.Delete(context.Background(), "p1"))
	})
}

// ─── retry behaviour ───

func TestConfluenceStore_Retry(t *testing.T) {
	t.Run("recovers from transient 5xx", func(t *testing.T) {
		var calls atomic.Int64
		store, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			fmt.Fprint(w, `{"id":"p1","title":"First","version":{"number":2},"body":{"storage":{"value":"x"}}}`)
		}))

		page, err := store.Get(context.Background(), "p1")
		require.NoError(t, err)
		assert.EqualValues(t, 2, page.Version)
		assert.EqualValues(t, 2, calls.Load())
	})

	t.Run("exhausted budget maps to ErrRemoteUnavailable", func(t *testing.T) {
		var calls atomic.Int64
		store, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))

		_, err := store.Get(context.Background(), "p1")
		assert.ErrorIs(t, err, ErrRemoteUnavailable)
		assert.EqualValues(t, 3, calls.Load()) // initial attempt + 2 retries
	})

	t.Run("4xx is not retried", func(t *testing.T) {
		var calls atomic.Int64
		store, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))

		_, err := store.Get(context.Background(), "p1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("cancellation surfaces as context error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		store, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))

		_, err := store.Get(ctx, "p1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

// ─── attachments ───

func TestConfluenceStore_Attachments(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/wiki/api/v2/pages/p1/attachments", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"results":[{"id":"a1","title":"diagram.png","mediaType":"image/png","_links":{"download":"/download/attachments/p1/diagram.png"}}]}`)
		})

		store, _ := newTestStore(t, mux)

		attachments, err := store.ListAttachments(context.Background(), "p1")
		require.NoError(t, err)
		require.Len(t, attachments, 1)
		assert.Equal(t, models.Attachment{
			ID:           "a1",
			PageID:       "p1",
			Title:        "diagram.png",
			MediaType:    "image/png",
			DownloadLink: "/download/attachments/p1/diagram.png",
		}, attachments[0])
	})

	t.Run("download prefixes wiki path", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/wiki/download/attachments/p1/diagram.png", func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
		})

		store, _ := newTestStore(t, mux)

		content, err := store.DownloadAttachment(context.Background(), models.Attachment{
			Title:        "diagram.png",
			DownloadLink: "/download/attachments/p1/diagram.png",
		})
		require.NoError(t, err)
		assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, content)
	})

	t.Run("download without link", func(t *testing.T) {
		store, _ := newTestStore(t, http.NewServeMux())

		_, err := store.DownloadAttachment(context.Background(), models.Attachment{Title: "orphan.bin"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("upload", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/wiki/rest/api/content/p1/child/attachment", func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "nocheck", r.Header.Get("X-Atlassian-Token"))

			require.NoError(t, r.ParseMultipartForm(1<<20))
			file, header, err := r.FormFile("file")
			require.NoError(t, err)
			defer file.Close()
			assert.Equal(t, "notes.txt", header.Filename)

			fmt.Fprint(w, `{"results":[{"id":"a2"}]}`)
		})

		store, _ := newTestStore(t, mux)

		err := store.UploadAttachment(context.Background(), "p1", "notes.txt", []byte("hello"))
		assert.NoError(t, err)
	})
}
