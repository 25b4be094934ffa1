package collabclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	dochandler "github.com/gogotex/gogotex/backend/collab-service/internal/document/handler"
	"github.com/gogotex/gogotex/backend/collab-service/internal/document/service"
	"github.com/gogotex/gogotex/backend/collab-service/internal/realtime"
	"github.com/gogotex/gogotex/backend/collab-service/internal/sessions"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv     *httptest.Server
	api     *API
	svc     *service.Service
	updates atomic.Int32
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := &testEnv{svc: service.NewMemoryService()}

	r := gin.New()
	api := r.Group("/api")
	api.Use(func(c *gin.Context) {
		if c.Request.Method == http.MethodPost && c.FullPath() == "/api/documents/:id" {
			env.updates.Add(1)
		}
		c.Next()
	})
	hub := realtime.NewHub(sessions.NewManager(), env.svc)
	dochandler.RegisterDocumentRoutes(api, env.svc)
	realtime.RegisterRoutes(api, hub, realtime.NewUpgrader(nil), realtime.DefaultSettings())

	env.srv = httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Shutdown()
		env.srv.Close()
	})
	var err error
	env.api, err = NewAPI(env.srv.URL+"/api", env.srv.Client())
	require.NoError(t, err)
	return env
}

func (e *testEnv) stored(t *testing.T, id string) string {
	t.Helper()
	d, err := e.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return d.Content
}

func open(t *testing.T, api *API, id string, opts Options) *Session {
	t.Helper()
	s, err := Open(context.Background(), api, id, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewAPIValidatesBaseURL(t *testing.T) {
	_, err := NewAPI("ftp://example.com", nil)
	require.Error(t, err)

	a, err := NewAPI("http://localhost:5000/api/", nil)
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:5000/api/ws", a.WebSocketURL())

	a, err = NewAPI("https://docs.example.com", nil)
	require.NoError(t, err)
	require.Equal(t, "wss://docs.example.com/ws", a.WebSocketURL())
}

func TestAPIRoundTrip(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	d, err := env.api.Create(ctx, "Notes", "")
	require.NoError(t, err)
	require.Equal(t, "Notes", d.Title)

	got, err := env.api.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, "", got.Content)
	require.Equal(t, "Notes", got.Title)

	up, err := env.api.Update(ctx, d.ID, "body")
	require.NoError(t, err)
	require.Equal(t, "body", up.Content)

	list, err := env.api.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = env.api.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = env.api.Update(ctx, "missing", "x")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpenFailsWhenDocumentCannotBeFetched(t *testing.T) {
	env := newEnv(t)
	_, err := Open(context.Background(), env.api, "missing", Options{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSessionsRelayEditsAndPresence(t *testing.T) {
	env := newEnv(t)
	d, err := env.api.Create(context.Background(), "Shared", "initial")
	require.NoError(t, err)

	received := make(chan string, 8)
	a := open(t, env.api, d.ID, Options{AutosaveDelay: time.Hour})
	b := open(t, env.api, d.ID, Options{AutosaveDelay: time.Hour, Handlers: Handlers{
		OnContent: func(c string) { received <- c },
	}})
	require.Equal(t, "initial", a.Content())

	require.Eventually(t, func() bool { return a.Collaborators() == 2 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return b.Collaborators() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Edit("hello"))
	require.Eventually(t, func() bool { return b.Content() == "hello" }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "hello", a.Content())

	var last string
	for len(received) > 0 {
		last = <-received
	}
	require.Equal(t, "hello", last)

	require.NoError(t, b.Close())
	require.Eventually(t, func() bool { return a.Collaborators() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestAutosaveIsDebounced(t *testing.T) {
	env := newEnv(t)
	d, err := env.api.Create(context.Background(), "t", "")
	require.NoError(t, err)

	notices := make(chan Notice, 4)
	s := open(t, env.api, d.ID, Options{AutosaveDelay: 50 * time.Millisecond, Handlers: Handlers{
		OnNotice: func(n Notice) { notices <- n },
	}})
	for _, c := range []string{"a", "ab", "abc"} {
		require.NoError(t, s.Edit(c))
	}

	select {
	case n := <-notices:
		require.Equal(t, MsgAutosaved, n.Message)
		require.False(t, n.Persistent())
	case <-time.After(2 * time.Second):
		t.Fatal("no autosave notice")
	}
	require.Equal(t, "abc", env.stored(t, d.ID))

	time.Sleep(150 * time.Millisecond)
	require.Equal(t, int32(1), env.updates.Load(), "one write per quiescence window")
	require.False(t, s.LastSaved().IsZero())
}

func TestSaveCreatesUnsavedDocumentAndJoinsRoom(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	a := open(t, env.api, "new", Options{AutosaveDelay: 20 * time.Millisecond})
	require.Empty(t, a.DocumentID())
	require.NoError(t, a.Edit("draft"))
	time.Sleep(60 * time.Millisecond)
	require.Zero(t, env.updates.Load(), "unsaved documents are not autosaved")

	d, err := a.Save(ctx, "")
	require.NoError(t, err)
	require.Equal(t, "Untitled Document", d.Title)
	require.Equal(t, d.ID, a.DocumentID())
	require.Equal(t, "draft", env.stored(t, d.ID))
	n, ok := a.Notice()
	require.True(t, ok)
	require.Equal(t, MsgCreated, n.Message)

	b := open(t, env.api, d.ID, Options{AutosaveDelay: time.Hour})
	require.Eventually(t, func() bool { return a.Collaborators() == 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, a.Edit("draft 2"))
	require.Eventually(t, func() bool { return b.Content() == "draft 2" }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		n, ok := a.Notice()
		return ok && n.Message == MsgAutosaved
	}, 2*time.Second, 10*time.Millisecond)

	_, err = a.Save(ctx, "ignored on update")
	require.NoError(t, err)
	require.Equal(t, "Untitled Document", a.Title())
	n, _ = a.Notice()
	require.Equal(t, MsgSaved, n.Message)
}

func TestSaveFailureIsPersistentAutosaveFailureIsTransient(t *testing.T) {
	env := newEnv(t)
	gin.SetMode(gin.TestMode)
	broken := gin.New()
	broken.GET("/api/documents/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "title": "t", "content": "x"})
	})
	broken.POST("/api/documents/:id", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
	bsrv := httptest.NewServer(broken)
	defer bsrv.Close()
	api, err := NewAPI(bsrv.URL+"/api", nil)
	require.NoError(t, err)

	s := open(t, api, "d1", Options{AutosaveDelay: 20 * time.Millisecond, WebSocketURL: env.api.WebSocketURL()})

	_, err = s.Save(context.Background(), "")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusInternalServerError, se.Code)

	n, ok := s.Notice()
	require.True(t, ok)
	require.Equal(t, NoticeError, n.Kind)
	require.True(t, n.Persistent())
	time.Sleep(50 * time.Millisecond)
	_, ok = s.Notice()
	require.True(t, ok, "explicit save failure stays until the next attempt")

	require.NoError(t, s.Edit("y"))
	require.Eventually(t, func() bool {
		n, ok := s.Notice()
		return ok && n.Message == MsgAutosaveFailed
	}, 2*time.Second, 10*time.Millisecond)
	n, _ = s.Notice()
	require.False(t, n.Persistent())
}

func TestCloseCancelsPendingAutosave(t *testing.T) {
	env := newEnv(t)
	d, err := env.api.Create(context.Background(), "t", "before")
	require.NoError(t, err)

	s := open(t, env.api, d.ID, Options{AutosaveDelay: 50 * time.Millisecond})
	require.NoError(t, s.Edit("after"))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	time.Sleep(150 * time.Millisecond)
	require.Equal(t, "before", env.stored(t, d.ID))
	require.ErrorIs(t, s.Edit("again"), ErrClosed)
	_, err = s.Save(context.Background(), "")
	require.ErrorIs(t, err, ErrClosed)
}

func TestNoticeBoard(t *testing.T) {
	var b noticeBoard
	b.show(Notice{Message: "transient", TTL: 20 * time.Millisecond})
	n, ok := b.get()
	require.True(t, ok)
	require.Equal(t, "transient", n.Message)
	require.Eventually(t, func() bool { _, ok := b.get(); return !ok }, time.Second, 5*time.Millisecond)

	b.show(Notice{Kind: NoticeError, Message: "stuck"})
	time.Sleep(30 * time.Millisecond)
	_, ok = b.get()
	require.True(t, ok)
	b.clearPersistent()
	_, ok = b.get()
	require.False(t, ok)

	// an expired timer from an older notice must not clear a newer one
	b.show(Notice{Message: "old", TTL: 10 * time.Millisecond})
	b.show(Notice{Message: "new"})
	time.Sleep(30 * time.Millisecond)
	n, ok = b.get()
	require.True(t, ok)
	require.Equal(t, "new", n.Message)
}
