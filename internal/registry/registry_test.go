package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	name    string
	healthy bool
}

func (f *fakeBackend) Name() string  { return f.name }
func (f *fakeBackend) Healthy() bool { return f.healthy }

func TestSelectFirstHealthyInPriorityOrder(t *testing.T) {
	primary := &fakeBackend{name: "primary", healthy: false}
	secondary := &fakeBackend{name: "secondary", healthy: true}
	tertiary := &fakeBackend{name: "tertiary", healthy: true}

	reg, err := New([]string{"primary", "secondary", "tertiary"}, tertiary, primary, secondary)
	require.NoError(t, err)

	got, ok := reg.Select()
	require.True(t, ok)
	assert.Equal(t, "secondary", got.Name())

	primary.healthy = true
	got, ok = reg.Select()
	require.True(t, ok)
	assert.Equal(t, "primary", got.Name())
}

func TestSelectNoneHealthy(t *testing.T) {
	reg, err := New([]string{"a"}, &fakeBackend{name: "a"})
	require.NoError(t, err)

	got, ok := reg.Select()
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestRegisteredButUnprioritizedIsNeverSelected(t *testing.T) {
	reg, err := New([]string{}, &fakeBackend{name: "a", healthy: true})
	require.NoError(t, err)

	_, ok := reg.Select()
	assert.False(t, ok)
	_, ok = reg.Get("a")
	assert.True(t, ok)
}

func TestNewRejectsUnknownPriority(t *testing.T) {
	_, err := New([]string{"missing"}, &fakeBackend{name: "a"})
	require.Error(t, err)
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New(nil, &fakeBackend{name: "a"}, &fakeBackend{name: "a"})
	require.Error(t, err)
}
