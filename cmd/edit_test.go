package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/bindpad/api/schemas"
	"github.com/xkilldash9x/bindpad/internal/browser/dom"
	"github.com/xkilldash9x/bindpad/internal/bus"
	"github.com/xkilldash9x/bindpad/internal/config"
	"github.com/xkilldash9x/bindpad/internal/editor"
	"github.com/xkilldash9x/bindpad/internal/mocks"
	"github.com/xkilldash9x/bindpad/internal/render"
	"github.com/xkilldash9x/bindpad/internal/shell"
	"github.com/xkilldash9x/bindpad/internal/store"
)

func renderBind(t *testing.T, b schemas.Bind) string {
	t.Helper()
	markup, err := render.Bind(b)
	require.NoError(t, err)
	return markup
}

// newTestSession builds a session over a fresh page listing the binds that
// ms returns.
func newTestSession(t *testing.T, ms *mocks.MockStore) (*session, *bytes.Buffer) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	page, err := render.Page(nil)
	require.NoError(t, err)
	doc, err := dom.ParseString(page, logger)
	require.NoError(t, err)

	eb := bus.New(logger, 4)
	clip := &editor.MemoryClipboard{}
	ctrl, err := editor.NewController(doc, ms, clip, logger, editor.Options{SettleDelay: 10 * time.Millisecond})
	require.NoError(t, err)
	listener, err := editor.NewCodeListener(doc, eb, clip, logger)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		listener.Run(context.Background())
	}()
	t.Cleanup(func() {
		_ = ctrl.Close()
		eb.Shutdown()
		<-done
	})

	require.NoError(t, ctrl.List(context.Background()))
	out := new(bytes.Buffer)
	return &session{doc: doc, ctrl: ctrl, listener: listener, clip: clip, out: out}, out
}

func TestSession_ListAndEdit(t *testing.T) {
	ctx := context.Background()
	ms := new(mocks.MockStore)
	b1 := schemas.Bind{ID: "b1", Code: "0x10", Action: schemas.Simple(schemas.ActionMediaStop)}
	ms.On("ListBinds", mock.Anything).Return([]string{renderBind(t, b1)}, nil)

	s, out := newTestSession(t, ms)

	require.NoError(t, s.exec(ctx, "list"))
	assert.Contains(t, out.String(), "b1")
	assert.Contains(t, out.String(), "0x10")
	assert.Contains(t, out.String(), "MediaStop")

	saved := schemas.Bind{ID: "b1", Code: "0x10", Action: schemas.KeyboardPress("Ctrl", "C")}
	ms.On("UpdateBind", mock.Anything, mock.Anything).Return(renderBind(t, saved), nil)

	require.NoError(t, s.exec(ctx, "set b1 action KeyboardPress"))
	require.NoError(t, s.exec(ctx, "set b1 value Ctrl, C"))
	assert.Contains(t, out.String(), "saving b1 once it settles")

	assert.Eventually(t, func() bool {
		out.Reset()
		return s.exec(ctx, "list") == nil && strings.Contains(out.String(), "Ctrl, C") && !s.ctrl.Pending("b1")
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, out.String(), "KeyboardPress")

	calls := ms.Calls
	last := calls[len(calls)-1]
	require.Equal(t, "UpdateBind", last.Method)
	update := last.Arguments.Get(1).(schemas.BindUpdate)
	assert.Equal(t, schemas.KeyboardPress("Ctrl", "C"), update.Action, "the settled edit carries the last form state")
}

func TestSession_AddAndRemove(t *testing.T) {
	ctx := context.Background()
	ms := new(mocks.MockStore)
	ms.On("ListBinds", mock.Anything).Return([]string{}, nil)
	ms.On("AddBind", mock.Anything).Return(renderBind(t, schemas.Bind{
		ID: "new", Code: schemas.DefaultBindCode, Action: schemas.Simple(schemas.DefaultBindAction),
	}), nil)
	ms.On("RemoveBind", mock.Anything, "new").Return(nil)

	s, _ := newTestSession(t, ms)

	require.NoError(t, s.exec(ctx, "add"))
	_, err := s.doc.Find(`.bind[bind-id="new"]`)
	require.NoError(t, err)

	require.NoError(t, s.exec(ctx, "rm new"))
	node, err := s.doc.QuerySelector(`.bind[bind-id="new"]`)
	require.NoError(t, err)
	assert.Nil(t, node)

	assert.Error(t, s.exec(ctx, "rm"), "rm needs an id")
	ms.AssertExpectations(t)
}

func TestSession_RemoveFailureKeepsBind(t *testing.T) {
	ctx := context.Background()
	ms := new(mocks.MockStore)
	b1 := schemas.Bind{ID: "b1", Code: "0x10", Action: schemas.Simple(schemas.ActionMediaStop)}
	ms.On("ListBinds", mock.Anything).Return([]string{renderBind(t, b1)}, nil)
	ms.On("RemoveBind", mock.Anything, "b1").Return(errors.New("store offline"))

	s, _ := newTestSession(t, ms)

	err := s.exec(ctx, "rm b1")
	assert.ErrorContains(t, err, "store offline")
	_, err = s.doc.Find(`.bind[bind-id="b1"]`)
	assert.NoError(t, err)
}

func TestSession_CodeAndCopy(t *testing.T) {
	ctx := context.Background()
	ms := new(mocks.MockStore)
	ms.On("ListBinds", mock.Anything).Return([]string{}, nil)

	s, out := newTestSession(t, ms)
	require.NoError(t, s.listener.Show("0xBEEF"))

	require.NoError(t, s.exec(ctx, "code"))
	assert.Contains(t, out.String(), "0xBEEF")

	require.NoError(t, s.exec(ctx, "copy"))
	assert.Contains(t, out.String(), "copied: 0xBEEF")
	assert.Equal(t, "0xBEEF", s.clip.(*editor.MemoryClipboard).Text())
}

func TestSession_Errors(t *testing.T) {
	ctx := context.Background()
	ms := new(mocks.MockStore)
	ms.On("ListBinds", mock.Anything).Return([]string{renderBind(t, schemas.Bind{
		ID: "b1", Code: "0x10", Action: schemas.Simple(schemas.ActionMediaStop),
	})}, nil)

	s, _ := newTestSession(t, ms)

	assert.ErrorContains(t, s.exec(ctx, "launch"), `unknown command "launch"`)
	assert.ErrorContains(t, s.exec(ctx, "set b1 colour red"), `unknown field "colour"`)
	assert.ErrorContains(t, s.exec(ctx, "set b1 action Teleport"), `no action "Teleport"`)
	assert.Error(t, s.exec(ctx, "set b1 code"), "set needs a value")
	assert.NoError(t, s.exec(ctx, ""))
	assert.ErrorIs(t, s.exec(ctx, "quit"), errQuit)
}

func TestSession_Loop(t *testing.T) {
	ms := new(mocks.MockStore)
	ms.On("ListBinds", mock.Anything).Return([]string{}, nil)
	s, out := newTestSession(t, ms)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := strings.NewReader("help\nbogus\nquit\nlist\n")
	require.NoError(t, s.loop(ctx, in, make(chan struct{})))
	assert.Contains(t, out.String(), "commands:")
	assert.Contains(t, out.String(), `error: unknown command "bogus"`)
	assert.NotContains(t, out.String(), "PENDING", "nothing after quit runs")

	pr, pw := io.Pipe()
	defer pw.Close()
	gone := make(chan struct{})
	close(gone)
	assert.ErrorContains(t, s.loop(ctx, pr, gone), "connection to host lost")
}

func TestRunEdit_EndToEnd(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := store.OpenFile(filepath.Join(t.TempDir(), "binds.yaml"), logger)
	require.NoError(t, err)
	svc := store.NewService(repo, logger)
	defer svc.Close()

	hostBus := bus.New(logger, 4)
	host, err := shell.NewHost(svc, hostBus, config.ShellConfig{SendBuffer: 8}, logger)
	require.NoError(t, err)
	server := httptest.NewServer(host.Router())
	hostDone := make(chan struct{})
	go func() {
		defer close(hostDone)
		host.Run(ctx)
	}()
	defer func() {
		host.Close()
		server.Close()
		hostBus.Shutdown()
		<-hostDone
	}()

	cfg := config.NewDefaultConfig()
	cfg.SetShellURL("ws" + strings.TrimPrefix(server.URL, "http") + "/ws")

	var out bytes.Buffer
	require.NoError(t, runEdit(ctx, cfg, strings.NewReader("add\nlist\nquit\n"), &out, logger))

	binds, err := svc.Binds(ctx)
	require.NoError(t, err)
	require.Len(t, binds, 1)
	assert.Contains(t, out.String(), binds[0].ID)
	assert.Contains(t, out.String(), schemas.DefaultBindCode)
}

func TestRunEdit_HostUnreachable(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.SetShellURL("ws://127.0.0.1:1/ws")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := runEdit(ctx, cfg, strings.NewReader(""), new(bytes.Buffer), zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "failed to connect to host")
}
