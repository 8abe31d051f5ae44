package editor

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentEditsShiftMarkers(t *testing.T) {
	d := NewHTMLDocument("<p>AAAA</p>")
	id, err := d.InsertPlaceholder(3, "[x]")
	require.NoError(t, err)
	assert.Equal(t, "<p>[x]AAAA</p>", d.String())

	require.NoError(t, d.Insert(0, "<h1>T</h1>"))
	start, end, ok := d.MarkerRange(id)
	require.True(t, ok)
	assert.Equal(t, 13, start)
	assert.Equal(t, 16, end)

	// Edits after the marker leave it in place.
	require.NoError(t, d.Insert(d.Len(), "<p>B</p>"))
	start, _, _ = d.MarkerRange(id)
	assert.Equal(t, 13, start)

	require.NoError(t, d.ReplaceWithImage(id, "http://cdn/a.png", "a"))
	assert.Equal(t, `<h1>T</h1><p><img src="http://cdn/a.png" alt="a">AAAA</p><p>B</p>`, d.String())
	assert.Zero(t, d.MarkerCount())
}

func TestDocumentInsertAtMarkerStartShiftsMarker(t *testing.T) {
	d := NewHTMLDocument("ab")
	id, err := d.InsertPlaceholder(1, "[x]")
	require.NoError(t, err)

	require.NoError(t, d.Insert(1, "Z"))
	assert.Equal(t, "aZ[x]b", d.String())
	start, end, _ := d.MarkerRange(id)
	assert.Equal(t, 2, start)
	assert.Equal(t, 5, end)

	assert.ErrorIs(t, d.Insert(3, "!"), ErrInsideMarker)
	_, err = d.InsertPlaceholder(4, "[y]")
	assert.ErrorIs(t, err, ErrInsideMarker)
}

func TestDocumentDeleteOverlappingMarkerRemovesIt(t *testing.T) {
	d := NewHTMLDocument("abcd")
	id, err := d.InsertPlaceholder(2, "[x]")
	require.NoError(t, err)
	require.Equal(t, "ab[x]cd", d.String())

	// Delete "b[" only; the whole placeholder goes with it.
	require.NoError(t, d.Delete(1, 2))
	assert.Equal(t, "acd", d.String())
	_, _, ok := d.MarkerRange(id)
	assert.False(t, ok)
	assert.ErrorIs(t, d.RemoveMarker(id), ErrMarkerNotFound)
	assert.ErrorIs(t, d.ReplaceWithImage(id, "u", "a"), ErrMarkerNotFound)
}

func TestDocumentDeleteBeforeMarker(t *testing.T) {
	d := NewHTMLDocument("abcd")
	id, err := d.InsertPlaceholder(4, "[x]")
	require.NoError(t, err)

	require.NoError(t, d.Delete(0, 2))
	require.NoError(t, d.Delete(0, 0))
	assert.Equal(t, "cd[x]", d.String())
	start, end, ok := d.MarkerRange(id)
	require.True(t, ok)
	assert.Equal(t, 2, start)
	assert.Equal(t, 5, end)
}

func TestDocumentUpdatePlaceholderShiftsFollowingMarkers(t *testing.T) {
	d := NewHTMLDocument("")
	first, err := d.InsertPlaceholder(0, "[1:0%]")
	require.NoError(t, err)
	second, err := d.InsertPlaceholder(d.Len(), "[2:0%]")
	require.NoError(t, err)

	require.NoError(t, d.UpdatePlaceholder(first, "[1:100%]"))
	assert.Equal(t, "[1:100%][2:0%]", d.String())

	require.NoError(t, d.RemoveMarker(second))
	require.NoError(t, d.RemoveMarker(first))
	assert.Empty(t, d.String())
}

func TestDocumentImageMarkupIsEscaped(t *testing.T) {
	d := NewHTMLDocument("")
	id, err := d.InsertPlaceholder(0, "[x]")
	require.NoError(t, err)
	require.NoError(t, d.ReplaceWithImage(id, `http://cdn/a.png?x=1&y="2"`, `<cat>`))
	assert.Equal(t, `<img src="http://cdn/a.png?x=1&amp;y=&#34;2&#34;" alt="&lt;cat&gt;">`, d.String())
}

func TestDocumentRangeChecks(t *testing.T) {
	d := NewHTMLDocument("abc")
	assert.ErrorIs(t, d.Insert(4, "x"), ErrOutOfRange)
	assert.ErrorIs(t, d.Insert(-1, "x"), ErrOutOfRange)
	assert.ErrorIs(t, d.Delete(2, 2), ErrOutOfRange)
	_, err := d.InsertPlaceholder(9, "[x]")
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = d.InsertPlaceholder(0, "")
	assert.Error(t, err)
}

func TestStorageKeyAndTrigger(t *testing.T) {
	assert.Equal(t, "articles/images/id_cat.png", StorageKey(DefaultFolder, "id", "cat.png"))
	assert.Equal(t, "articles/images/id_cat.png", StorageKey(DefaultFolder, "id", `C:\tmp\cat.png`))
	assert.Equal(t, "x/id_image", StorageKey("x", "id", ""))

	tr, err := ParseTrigger("toolbar")
	require.NoError(t, err)
	assert.Equal(t, TriggerPicker, tr)
	tr, err = ParseTrigger("Drop")
	require.NoError(t, err)
	assert.Equal(t, TriggerDrop, tr)
	_, err = ParseTrigger("shake")
	assert.Error(t, err)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, percent(0, 100))
	assert.Equal(t, 45, percent(45, 100))
	assert.Equal(t, 100, percent(150, 100))
	assert.Equal(t, 0, percent(10, -1))
	assert.Equal(t, 33, percent(1, 3))
}

func TestDocumentRejectsPositionsInsideACharacter(t *testing.T) {
	d := NewHTMLDocument("<p>中文</p>")

	assert.ErrorIs(t, d.Insert(5, "x"), ErrOutOfRange)
	assert.ErrorIs(t, d.Delete(3, 1), ErrOutOfRange)
	assert.ErrorIs(t, d.Delete(4, 2), ErrOutOfRange)
	_, err := d.InsertPlaceholder(4, "[x]")
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, "<p>中文</p>", d.String())

	require.NoError(t, d.Insert(6, "x"))
	assert.Equal(t, "<p>中x文</p>", d.String())
	assert.True(t, utf8.ValidString(d.String()))
}

func TestDocumentUTF16Positions(t *testing.T) {
	d := NewHTMLDocument("<p>中文😀</p>")

	// "<p>中文" is five UTF-16 code units long.
	require.NoError(t, d.InsertUTF16(5, "!"))
	assert.Equal(t, "<p>中文!😀</p>", d.String())

	b, err := d.ByteOffset(6)
	require.NoError(t, err)
	assert.Equal(t, 10, b)

	// The emoji is a surrogate pair; its middle is not a position.
	_, err = d.ByteOffset(7)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.ErrorIs(t, d.InsertUTF16(7, "x"), ErrOutOfRange)
	_, err = d.ByteOffset(100)
	assert.ErrorIs(t, err, ErrOutOfRange)

	require.NoError(t, d.DeleteUTF16(6, 2))
	assert.Equal(t, "<p>中文!</p>", d.String())

	end, err := d.ByteOffset(10)
	require.NoError(t, err)
	assert.Equal(t, d.Len(), end)
}

func TestDocumentUTF16PlaceholderLandsAtCaret(t *testing.T) {
	d := NewHTMLDocument("<p>中文</p>")
	at, err := d.ByteOffset(5)
	require.NoError(t, err)
	id, err := d.InsertPlaceholder(at, "[x]")
	require.NoError(t, err)
	assert.Equal(t, "<p>中文[x]</p>", d.String())

	require.NoError(t, d.InsertUTF16(3, "标题"))
	require.NoError(t, d.ReplaceWithImage(id, "http://cdn/a.png", "a"))
	assert.Equal(t, `<p>标题中文<img src="http://cdn/a.png" alt="a"></p>`, d.String())
}
