package formatter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/house-cat/echo-notifications/internal/model"
)

func TestNewUnknownKind(t *testing.T) {
	_, err := New(Kind("fancy"))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestSystemSharesBasic(t *testing.T) {
	system, err := New(KindSystem)
	require.NoError(t, err)
	basic, err := New(KindBasic)
	require.NoError(t, err)
	assert.Equal(t, basic, system)
}

func TestFormatRejectsInvalidOutputFormat(t *testing.T) {
	f, err := New(KindBasic)
	require.NoError(t, err)

	_, err = f.Format(model.Event{Type: "mention"}, model.User{Name: "Alice"}, OutputFormat("pdf"))
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestEditFormatterRequiresTitle(t *testing.T) {
	f, err := New(KindEdit)
	require.NoError(t, err)

	_, err = f.Format(model.Event{Type: "edit"}, model.User{Name: "Alice"}, FormatText)
	assert.Error(t, err)

	out, err := f.Format(model.Event{Type: "edit", Title: "Main Page"}, model.User{Name: "Alice"}, FormatText)
	require.NoError(t, err)
	assert.Contains(t, out, "Main Page")
}
