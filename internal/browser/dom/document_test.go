package dom_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/bindpad/internal/browser/dom"
)

const listHTML = `<html><body>
<div id="main">
  <button class="add-bind">+</button>
  <div class="binds"><div class="bind" bind-id="a">A</div><div class="bind" bind-id="b">B</div></div>
</div>
</body></html>`

func bindIDs(t *testing.T, doc *dom.Document) []string {
	t.Helper()
	nodes, err := doc.QuerySelectorAll("#main .binds .bind")
	require.NoError(t, err)
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, doc.Attr(n, "bind-id"))
	}
	return ids
}

func TestTranslateSelector(t *testing.T) {
	tests := []struct {
		css   string
		xpath string
	}{
		{"#pressed-code", "//*[@id='pressed-code']"},
		{"#main .binds", "//*[@id='main']//*[contains(concat(' ', normalize-space(@class), ' '), ' binds ')]"},
		{"button.add-bind", "//button[contains(concat(' ', normalize-space(@class), ' '), ' add-bind ')]"},
		{`.bind[bind-id="x 1"]`, "//*[contains(concat(' ', normalize-space(@class), ' '), ' bind ') and @bind-id='x 1']"},
		{"input[name]", "//input[@name]"},
		{"form > input", "//form/input"},
		{"//div", "//div"},
	}
	for _, tt := range tests {
		got, err := dom.TranslateSelector(tt.css)
		require.NoError(t, err, tt.css)
		assert.Equal(t, tt.xpath, got, tt.css)
	}

	for _, bad := range []string{"", "input:checked", `[name="unterminated]`, "#"} {
		_, err := dom.TranslateSelector(bad)
		assert.Error(t, err, bad)
	}
}

func TestDocument_InsertAdjacentHTML(t *testing.T) {
	doc, err := dom.ParseString(listHTML, zaptest.NewLogger(t))
	require.NoError(t, err)

	container, err := doc.Find("#main .binds")
	require.NoError(t, err)

	inserted, err := doc.InsertAdjacentHTML(container, dom.BeforeEnd, `<div class="bind" bind-id="c">C</div>`)
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	assert.Equal(t, []string{"a", "b", "c"}, bindIDs(t, doc))

	_, err = doc.InsertAdjacentHTML(container, dom.AfterBegin, `<div class="bind" bind-id="z">Z</div>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "b", "c"}, bindIDs(t, doc))
}

func TestDocument_ReplaceAndRemove(t *testing.T) {
	doc, err := dom.ParseString(listHTML, zaptest.NewLogger(t))
	require.NoError(t, err)

	target, err := doc.Find(`.bind[bind-id="a"]`)
	require.NoError(t, err)

	_, err = doc.ReplaceOuterHTML(target, `<div class="bind" bind-id="a">A2</div>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, bindIDs(t, doc))
	assert.False(t, doc.Contains(target), "replaced node must be detached")

	fresh, err := doc.Find(`.bind[bind-id="a"]`)
	require.NoError(t, err)
	assert.Equal(t, "A2", doc.InnerText(fresh))

	// The old node is gone, so a late replace against it fails.
	_, err = doc.ReplaceOuterHTML(target, `<div></div>`)
	assert.ErrorIs(t, err, dom.ErrDetached)

	require.NoError(t, doc.Remove(fresh))
	assert.Equal(t, []string{"b"}, bindIDs(t, doc))
	assert.ErrorIs(t, doc.Remove(fresh), dom.ErrDetached)
}

func TestDocument_FindMissing(t *testing.T) {
	doc, err := dom.ParseString(listHTML, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = doc.Find("#nope")
	var notFound *dom.ElementNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "#nope", notFound.Selector)
}

func TestDocument_ValuesAndChecked(t *testing.T) {
	doc, err := dom.ParseString(`<html><body><form>
		<input name="code" value="0x1">
		<input type="radio" name="action" value="A" checked>
		<input type="radio" name="action" value="B">
		<textarea name="notes">hello</textarea>
	</form></body></html>`, zaptest.NewLogger(t))
	require.NoError(t, err)

	code, err := doc.Find(`input[name="code"]`)
	require.NoError(t, err)
	doc.SetValue(code, "0x2")
	assert.Equal(t, "0x2", doc.Value(code))

	notes, err := doc.Find("textarea")
	require.NoError(t, err)
	doc.SetValue(notes, "bye")
	assert.Equal(t, "bye", doc.Value(notes))

	a, err := doc.Find(`input[value="A"]`)
	require.NoError(t, err)
	b, err := doc.Find(`input[value="B"]`)
	require.NoError(t, err)

	doc.SetChecked(b, true)
	assert.True(t, doc.HasAttr(b, "checked"))
	assert.False(t, doc.HasAttr(a, "checked"), "checking a radio unchecks its group")
}
