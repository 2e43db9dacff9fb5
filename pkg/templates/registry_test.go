package templates

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidator/pkg/errors"
)

func TestRegistry_LoadAndRender(t *testing.T) {
	fsys := fstest.MapFS{
		"telegram/bot_started.tmpl": {Data: []byte("*{{ escape .Title }}* on the {{ ordinal .Attempt }} try")},
		"telegram/README.md":        {Data: []byte("ignored")},
	}

	reg, err := NewRegistryFromFS(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"telegram/bot_started"}, reg.List())

	out, err := reg.Render("telegram/bot_started", map[string]any{"Title": "bot_started", "Attempt": 2})
	require.NoError(t, err)
	assert.Equal(t, "*bot\\_started* on the 2nd try", out)
}

func TestRegistry_LazyLoad(t *testing.T) {
	fsys := fstest.MapFS{}
	reg, err := NewRegistryFromFS(fsys)
	require.NoError(t, err)
	assert.False(t, reg.Has("telegram/scan_failed"))

	fsys["telegram/scan_failed.tmpl"] = &fstest.MapFile{Data: []byte("failed: {{ .Reason }}")}

	out, err := reg.Render("telegram/scan_failed", map[string]string{"Reason": "db down"})
	require.NoError(t, err)
	assert.Equal(t, "failed: db down", out)
	assert.True(t, reg.Has("telegram/scan_failed"))
}

func TestRegistry_Missing(t *testing.T) {
	reg, err := NewRegistryFromFS(fstest.MapFS{})
	require.NoError(t, err)

	_, err = reg.Render("telegram/nope", nil)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestRegistry_ParseErrorFailsLoad(t *testing.T) {
	_, err := NewRegistryFromFS(fstest.MapFS{"bad.tmpl": {Data: []byte("{{ .Unclosed ")}})
	assert.ErrorContains(t, err, "parse template bad")
}

func TestGet_EmbeddedTelegramTemplates(t *testing.T) {
	ids := Get().List()
	assert.Contains(t, ids, "telegram/event")
	assert.Contains(t, ids, "telegram/liquidation_succeeded")
	assert.Contains(t, ids, "telegram/liquidation_failed")
	assert.Contains(t, ids, "telegram/scan_completed")
}

func TestEscapeHelpers(t *testing.T) {
	assert.Equal(t, "a\\_b\\*c\\`d\\[e]", EscapeMarkdown("a_b*c`d[e]"))
	assert.Equal(t, "connection 'refused'", CodeSpan("connection `refused`"))
}
