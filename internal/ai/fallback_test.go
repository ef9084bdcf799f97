package ai_test

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companion-chat/internal/ai"
	"companion-chat/internal/models"
)

func TestPickRendersPersonaName(t *testing.T) {
	c := &ai.Catalog{Default: ai.FallbackSet{Nudges: []string{"{name} misses you"}}}
	assert.Equal(t, "Rex misses you", c.Pick(ai.KindInactivityNudge, models.Persona{Name: "Rex"}))
	assert.Equal(t, "Your companion misses you", c.Pick(ai.KindInactivityNudge, models.Persona{}))
}

func TestPickIsStableForSeededRand(t *testing.T) {
	a := ai.DefaultCatalog().WithRand(rand.New(rand.NewPCG(7, 7)))
	b := ai.DefaultCatalog().WithRand(rand.New(rand.NewPCG(7, 7)))
	for i := 0; i < 5; i++ {
		assert.Equal(t, a.Pick(ai.KindChatReply, rex), b.Pick(ai.KindChatReply, rex))
	}
}

func TestPickFallsBackWhenCatalogEmpty(t *testing.T) {
	c := &ai.Catalog{}
	assert.Equal(t, "I'm here!", c.Pick(ai.KindChatReply, rex))
	assert.Equal(t, "Rex misses you.", c.Pick(ai.KindInactivityNudge, rex))
}

func TestLoadCatalogMergesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallback.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default:
  replies:
    - "custom reply"
kinds:
  Hamster:
    nudges:
      - "{name} is running in the wheel for you"
`), 0o600))

	c, err := ai.LoadCatalog(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"custom reply"}, c.Default.Replies)
	assert.NotEmpty(t, c.Default.Nudges)
	assert.NotEmpty(t, c.Kinds["dog"].Replies)
	assert.Equal(t, "Bun is running in the wheel for you",
		c.Pick(ai.KindInactivityNudge, models.Persona{Name: "Bun", Kind: "hamster"}))
	assert.Equal(t, "custom reply", c.Pick(ai.KindChatReply, models.Persona{Name: "Bun", Kind: "hamster"}))
}

func TestLoadCatalogDropsBlankEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallback.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default:
  replies:
    - "   "
    - ""
  nudges:
    - "  {name} wants to play  "
    - " "
kinds:
  cat:
    replies:
      - "  "
`), 0o600))

	c, err := ai.LoadCatalog(path)
	require.NoError(t, err)

	assert.Equal(t, ai.DefaultCatalog().Default.Replies, c.Default.Replies)
	assert.Equal(t, []string{"{name} wants to play"}, c.Default.Nudges)
	assert.Empty(t, c.Kinds["cat"].Replies)

	mochi := models.Persona{Name: "Mochi", Kind: "cat"}
	for i := 0; i < 10; i++ {
		assert.Contains(t, ai.DefaultCatalog().Default.Replies, c.Pick(ai.KindChatReply, mochi))
	}
	assert.Equal(t, "Mochi wants to play", c.Pick(ai.KindInactivityNudge, mochi))
}

func TestLoadCatalogEmptyPathReturnsDefaults(t *testing.T) {
	c, err := ai.LoadCatalog("")
	require.NoError(t, err)
	assert.Equal(t, ai.DefaultCatalog().Default.Replies, c.Default.Replies)
}

func TestLoadCatalogErrors(t *testing.T) {
	_, err := ai.LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default: [unclosed"), 0o600))
	_, err = ai.LoadCatalog(path)
	assert.Error(t, err)
}
