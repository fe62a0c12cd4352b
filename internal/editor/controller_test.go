package editor_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/bindpad/api/schemas"
	"github.com/xkilldash9x/bindpad/internal/browser/dom"
	"github.com/xkilldash9x/bindpad/internal/editor"
	"github.com/xkilldash9x/bindpad/internal/mocks"
)

func bindMarkup(id, code string) string {
	return fmt.Sprintf(`<div class="bind" bind-id="%[1]s"><form class="options">`+
		`<input type="hidden" name="id" value="%[1]s">`+
		`<input type="text" name="code" value="%[2]s">`+
		`<input type="radio" name="action" value="KeyboardPress" checked>`+
		`<input type="radio" name="action" value="MediaStop">`+
		`<input type="text" name="value" value="Ctrl, C">`+
		`<input type="checkbox" name="repeat">`+
		`<button class="remove" target="%[1]s">x</button>`+
		`</form></div>`, id, code)
}

func pageWith(binds ...string) string {
	return `<html><body>` +
		`<div id="header"><input id="pressed-code" value=""></div>` +
		`<div id="main"><button class="add-bind">+</button><div class="binds">` +
		strings.Join(binds, "") +
		`</div></div></body></html>`
}

type fixture struct {
	doc   *dom.Document
	store *mocks.MockStore
	clip  *mocks.MockClipboard
	ctrl  *editor.Controller
}

func newFixture(t *testing.T, logger *zap.Logger, opts editor.Options, binds ...string) *fixture {
	t.Helper()
	if logger == nil {
		logger = zaptest.NewLogger(t)
	}
	doc, err := dom.ParseString(pageWith(binds...), logger)
	require.NoError(t, err)

	store := new(mocks.MockStore)
	clip := new(mocks.MockClipboard)
	ctrl, err := editor.NewController(doc, store, clip, logger, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.Close() })
	return &fixture{doc: doc, store: store, clip: clip, ctrl: ctrl}
}

func bindIDs(t *testing.T, doc *dom.Document) []string {
	t.Helper()
	nodes, err := doc.QuerySelectorAll(editor.SelectorBinds + " .bind")
	require.NoError(t, err)
	ids := []string{}
	for _, n := range nodes {
		ids = append(ids, doc.Attr(n, "bind-id"))
	}
	return ids
}

func TestNewController_NilDependencies(t *testing.T) {
	doc, err := dom.ParseString(pageWith(), nil)
	require.NoError(t, err)

	_, err = editor.NewController(nil, new(mocks.MockStore), nil, nil, editor.Options{})
	assert.ErrorIs(t, err, editor.ErrNilDependency)
	_, err = editor.NewController(doc, nil, nil, nil, editor.Options{})
	assert.ErrorIs(t, err, editor.ErrNilDependency)
}

func TestController_List(t *testing.T) {
	f := newFixture(t, nil, editor.Options{})
	f.store.On("ListBinds", mock.Anything).Return([]string{bindMarkup("a", "0x1"), bindMarkup("b", "0x2")}, nil).Once()

	require.NoError(t, f.ctrl.List(context.Background()))
	assert.Equal(t, []string{"a", "b"}, bindIDs(t, f.doc))
	f.store.AssertExpectations(t)
}

func TestController_ListFailure(t *testing.T) {
	f := newFixture(t, nil, editor.Options{})
	boom := errors.New("store offline")
	f.store.On("ListBinds", mock.Anything).Return(nil, boom).Once()

	err := f.ctrl.List(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, bindIDs(t, f.doc))
}

func TestController_AddAppendsAtEnd(t *testing.T) {
	f := newFixture(t, nil, editor.Options{}, bindMarkup("a", "0x1"), bindMarkup("b", "0x2"))
	f.store.On("AddBind", mock.Anything).Return(bindMarkup("c", schemas.DefaultBindCode), nil).Once()

	require.NoError(t, f.ctrl.Add(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, bindIDs(t, f.doc))
}

func TestController_AddFailureInsertsNothing(t *testing.T) {
	f := newFixture(t, nil, editor.Options{}, bindMarkup("a", "0x1"))
	f.store.On("AddBind", mock.Anything).Return("", errors.New("nope")).Once()

	assert.Error(t, f.ctrl.Add(context.Background()))
	assert.Equal(t, []string{"a"}, bindIDs(t, f.doc))
}

func TestController_RemoveExactNode(t *testing.T) {
	f := newFixture(t, nil, editor.Options{}, bindMarkup("a", "0x1"), bindMarkup("b", "0x2"), bindMarkup("c", "0x3"))
	f.store.On("RemoveBind", mock.Anything, "b").Return(nil).Once()

	require.NoError(t, f.ctrl.Remove(context.Background(), "b"))
	assert.Equal(t, []string{"a", "c"}, bindIDs(t, f.doc))
}

func TestController_RemoveFailureKeepsNode(t *testing.T) {
	f := newFixture(t, nil, editor.Options{}, bindMarkup("a", "0x1"))
	f.store.On("RemoveBind", mock.Anything, "a").Return(errors.New("locked")).Once()

	assert.Error(t, f.ctrl.Remove(context.Background(), "a"))
	assert.Equal(t, []string{"a"}, bindIDs(t, f.doc))
}

func TestController_RemoveFailureKeepsPendingEdit(t *testing.T) {
	f := newFixture(t, nil, editor.Options{SettleDelay: 50 * time.Millisecond}, bindMarkup("a", "0x1"))
	f.store.On("RemoveBind", mock.Anything, "a").Return(errors.New("locked")).Once()

	sent := make(chan schemas.BindUpdate, 1)
	f.store.On("UpdateBind", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent <- args.Get(1).(schemas.BindUpdate) }).
		Return(bindMarkup("a", "0x7"), nil).Once()

	code, err := f.doc.Find(`.bind[bind-id="a"] input[name="code"]`)
	require.NoError(t, err)
	f.doc.SetValue(code, "0x7")
	require.NoError(t, f.ctrl.HandleInput(code))

	assert.Error(t, f.ctrl.Remove(context.Background(), "a"))
	assert.True(t, f.ctrl.Pending("a"), "the edit survives a failed remove")

	select {
	case got := <-sent:
		require.NotNil(t, got.Code)
		assert.Equal(t, "0x7", *got.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("pending edit was never sent")
	}
	f.store.AssertExpectations(t)
}

func TestController_RemoveCancelsPendingEdit(t *testing.T) {
	f := newFixture(t, nil, editor.Options{SettleDelay: 30 * time.Millisecond}, bindMarkup("a", "0x1"))
	f.store.On("RemoveBind", mock.Anything, "a").Return(nil).Once()

	code, err := f.doc.Find(`.bind[bind-id="a"] input[name="code"]`)
	require.NoError(t, err)
	require.NoError(t, f.ctrl.HandleInput(code))

	require.NoError(t, f.ctrl.Remove(context.Background(), "a"))
	assert.False(t, f.ctrl.Pending("a"))

	time.Sleep(100 * time.Millisecond)
	f.store.AssertNotCalled(t, "UpdateBind", mock.Anything, mock.Anything)
}

func TestController_RemoveIgnoresBindIDOutsideList(t *testing.T) {
	f := newFixture(t, nil, editor.Options{}, bindMarkup("a", "0x1"))
	header, err := f.doc.Find("#header")
	require.NoError(t, err)
	_, err = f.doc.InsertAdjacentHTML(header, dom.BeforeEnd, `<div class="bind" bind-id="a">preview</div>`)
	require.NoError(t, err)

	sel, err := editor.BindSelector("a")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sel, editor.SelectorBinds+" "))

	f.store.On("RemoveBind", mock.Anything, "a").Return(nil).Once()
	require.NoError(t, f.ctrl.Remove(context.Background(), "a"))
	assert.Empty(t, bindIDs(t, f.doc))

	stray, err := f.doc.Find(`#header .bind[bind-id="a"]`)
	require.NoError(t, err, "only the list entry is removed")
	assert.Equal(t, "preview", f.doc.InnerText(stray))
}

func TestController_RemoveWhileUpdateInFlight(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f := newFixture(t, zap.New(core), editor.Options{SettleDelay: 10 * time.Millisecond},
		bindMarkup("a", "0x1"), bindMarkup("b", "0x2"))

	started := make(chan struct{})
	release := make(chan struct{})
	f.store.On("UpdateBind", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(bindMarkup("a", "0x5"), nil).Once()
	f.store.On("RemoveBind", mock.Anything, "a").Return(nil).Once()

	code, err := f.doc.Find(`.bind[bind-id="a"] input[name="code"]`)
	require.NoError(t, err)
	f.doc.SetValue(code, "0x5")
	require.NoError(t, f.ctrl.HandleInput(code))

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced update never reached the store")
	}
	require.NoError(t, f.ctrl.Remove(context.Background(), "a"))
	close(release)

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("Dropping update for a removed bind").Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"b"}, bindIDs(t, f.doc), "a late answer never re-inserts the bind")
	assert.Zero(t, logs.FilterLevelExact(zap.ErrorLevel).Len())
	f.store.AssertExpectations(t)
}

func TestController_RapidEditsSendOneUpdate(t *testing.T) {
	f := newFixture(t, nil, editor.Options{SettleDelay: 30 * time.Millisecond}, bindMarkup("a", "0x1"), bindMarkup("b", "0x2"))

	sent := make(chan schemas.BindUpdate, 4)
	f.store.On("UpdateBind", mock.Anything, mock.AnythingOfType("schemas.BindUpdate")).
		Run(func(args mock.Arguments) { sent <- args.Get(1).(schemas.BindUpdate) }).
		Return(bindMarkup("a", "0xC"), nil)

	code, err := f.doc.Find(`.bind[bind-id="a"] input[name="code"]`)
	require.NoError(t, err)
	for _, v := range []string{"0xA", "0xB", "0xC"} {
		f.doc.SetValue(code, v)
		require.NoError(t, f.ctrl.HandleInput(code))
	}
	assert.True(t, f.ctrl.Pending("a"))

	var got schemas.BindUpdate
	select {
	case got = <-sent:
	case <-time.After(2 * time.Second):
		t.Fatal("update was never sent")
	}
	require.NotNil(t, got.Code)
	assert.Equal(t, "0xC", *got.Code)
	assert.Equal(t, schemas.KeyboardPress("Ctrl", "C"), got.Action)

	select {
	case extra := <-sent:
		t.Fatalf("unexpected second update: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
	f.store.AssertNumberOfCalls(t, "UpdateBind", 1)

	// The node was replaced by the store's rendering.
	assert.Eventually(t, func() bool {
		n, err := f.doc.Find(`.bind[bind-id="a"] input[name="code"]`)
		return err == nil && n != code && f.doc.Value(n) == "0xC"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, bindIDs(t, f.doc))
}

func TestController_LateUpdateIsDropped(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f := newFixture(t, zap.New(core), editor.Options{}, bindMarkup("b", "0x2"))

	f.store.On("UpdateBind", mock.Anything, mock.Anything).Return(bindMarkup("gone", "0x9"), nil).Once()

	err := f.ctrl.Update(context.Background(), schemas.BindUpdate{ID: "gone", Action: schemas.Simple(schemas.ActionMediaStop)})
	assert.ErrorIs(t, err, editor.ErrBindRemoved)
	assert.Equal(t, []string{"b"}, bindIDs(t, f.doc), "removed binds are never re-inserted")
	assert.Equal(t, 1, logs.FilterMessage("Dropping update for a removed bind").Len())
}

func TestController_HandleInputOutsideForm(t *testing.T) {
	f := newFixture(t, nil, editor.Options{})
	field, err := f.doc.Find(editor.SelectorPressedCode)
	require.NoError(t, err)
	assert.ErrorIs(t, f.ctrl.HandleInput(field), editor.ErrNotInForm)
}

func TestController_HandleClick(t *testing.T) {
	f := newFixture(t, nil, editor.Options{}, bindMarkup("a", "0x1"), bindMarkup("b", "0x2"))
	ctx := context.Background()

	f.store.On("RemoveBind", mock.Anything, "a").Return(nil).Once()
	remove, err := f.doc.Find(`button.remove[target="a"]`)
	require.NoError(t, err)
	require.NoError(t, f.ctrl.HandleClick(ctx, remove))
	assert.Equal(t, []string{"b"}, bindIDs(t, f.doc))

	f.store.On("AddBind", mock.Anything).Return(bindMarkup("c", "FFFFFF"), nil).Once()
	add, err := f.doc.Find(editor.SelectorAddBind)
	require.NoError(t, err)
	require.NoError(t, f.ctrl.HandleClick(ctx, add))
	assert.Equal(t, []string{"b", "c"}, bindIDs(t, f.doc))

	pressed, err := f.doc.Find(editor.SelectorPressedCode)
	require.NoError(t, err)
	f.doc.SetValue(pressed, "0xBEEF")
	f.clip.On("WriteText", mock.Anything, "0xBEEF").Return(errors.New("no display")).Once()
	assert.NoError(t, f.ctrl.HandleClick(ctx, pressed), "clipboard failures are only logged")
	f.clip.AssertExpectations(t)
	f.store.AssertExpectations(t)
}

func TestController_CloseFlushesPendingEdits(t *testing.T) {
	f := newFixture(t, nil, editor.Options{SettleDelay: time.Hour, FlushOnClose: true}, bindMarkup("a", "0x1"))
	f.store.On("UpdateBind", mock.Anything, mock.Anything).Return(bindMarkup("a", "0x1"), nil).Once()

	code, err := f.doc.Find(`input[name="code"]`)
	require.NoError(t, err)
	require.NoError(t, f.ctrl.HandleInput(code))

	require.NoError(t, f.ctrl.Close())
	f.store.AssertNumberOfCalls(t, "UpdateBind", 1)
	assert.False(t, f.ctrl.Pending("a"))
}

func TestController_CloseDropsPendingEdits(t *testing.T) {
	f := newFixture(t, nil, editor.Options{SettleDelay: time.Hour}, bindMarkup("a", "0x1"))

	code, err := f.doc.Find(`input[name="code"]`)
	require.NoError(t, err)
	require.NoError(t, f.ctrl.HandleInput(code))

	require.NoError(t, f.ctrl.Close())
	f.store.AssertNotCalled(t, "UpdateBind", mock.Anything, mock.Anything)
}

// blockUntilCancelled makes UpdateBind hang until its context is done, like a
// host that accepted the request and never answered.
func blockUntilCancelled(f *fixture) <-chan struct{} {
	started := make(chan struct{})
	f.store.On("UpdateBind", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			close(started)
			<-args.Get(0).(context.Context).Done()
		}).
		Return("", context.Canceled).Once()
	return started
}

func TestController_CloseDoesNotHangOnStuckStore(t *testing.T) {
	tests := []struct {
		name string
		opts editor.Options
	}{
		{"drop pending", editor.Options{SettleDelay: 10 * time.Millisecond}},
		{"flush pending", editor.Options{SettleDelay: 10 * time.Millisecond, FlushOnClose: true, DispatchTimeout: 100 * time.Millisecond}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, tt.opts, bindMarkup("a", "0x1"))
			started := blockUntilCancelled(f)

			code, err := f.doc.Find(`.bind[bind-id="a"] input[name="code"]`)
			require.NoError(t, err)
			require.NoError(t, f.ctrl.HandleInput(code))

			select {
			case <-started:
			case <-time.After(2 * time.Second):
				t.Fatal("debounced update never reached the store")
			}

			closed := make(chan error, 1)
			go func() { closed <- f.ctrl.Close() }()
			select {
			case err := <-closed:
				assert.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("Close blocked on a store call that never answers")
			}
		})
	}
}

func TestController_DispatchTimeoutBoundsStoreCall(t *testing.T) {
	f := newFixture(t, nil, editor.Options{SettleDelay: 10 * time.Millisecond, DispatchTimeout: 50 * time.Millisecond}, bindMarkup("a", "0x1"))

	ended := make(chan error, 1)
	f.store.On("UpdateBind", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
			ended <- ctx.Err()
		}).
		Return("", context.DeadlineExceeded).Once()

	code, err := f.doc.Find(`.bind[bind-id="a"] input[name="code"]`)
	require.NoError(t, err)
	require.NoError(t, f.ctrl.HandleInput(code))

	// The call ends on its own deadline while the controller is still open.
	select {
	case err := <-ended:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("store call outlived its dispatch timeout")
	}
}
