package render

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// fakeAdapter layers queue family and extension data over the fake device's
// surface queries.
type fakeAdapter struct {
	*fakeDevice

	families   []core1_0.QueueFamilyProperties
	present    map[int]bool
	extensions map[string]struct{}
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		fakeDevice: newFakeDevice(),
		families: []core1_0.QueueFamilyProperties{
			{QueueFlags: core1_0.QueueGraphics},
		},
		present:    map[int]bool{0: true},
		extensions: map[string]struct{}{"VK_KHR_swapchain": {}},
	}
}

func (a *fakeAdapter) QueueFamilyProperties() []core1_0.QueueFamilyProperties {
	return a.families
}

func (a *fakeAdapter) SupportsPresent(family int) (bool, error) {
	return a.present[family], nil
}

func (a *fakeAdapter) DeviceExtensions() (map[string]struct{}, error) {
	return a.extensions, nil
}

var _ AdapterQuerier = (*fakeAdapter)(nil)

func TestResolveAdapter(t *testing.T) {
	adapter := newFakeAdapter()

	caps, err := ResolveAdapter(adapter, []string{"VK_KHR_swapchain"})
	require.NoError(t, err)

	require.Equal(t, 0, caps.GraphicsFamily)
	require.Equal(t, 0, caps.PresentFamily)
	require.False(t, caps.SeparatePresentQueue())
	require.NotNil(t, caps.SurfaceCapabilities)
	require.Len(t, caps.Formats, 1)
	require.Len(t, caps.PresentModes, 1)
}

func TestResolveAdapterPicksFirstMatchingFamilies(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.families = []core1_0.QueueFamilyProperties{
		{QueueFlags: 0}, // transfer-only
		{QueueFlags: core1_0.QueueGraphics},
		{QueueFlags: core1_0.QueueGraphics},
	}
	adapter.present = map[int]bool{2: true}

	caps, err := ResolveAdapter(adapter, nil)
	require.NoError(t, err)

	require.Equal(t, 1, caps.GraphicsFamily)
	require.Equal(t, 2, caps.PresentFamily)
	require.True(t, caps.SeparatePresentQueue())
}

func TestResolveAdapterNoGraphicsFamily(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.families = []core1_0.QueueFamilyProperties{{QueueFlags: 0}}

	_, err := ResolveAdapter(adapter, nil)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestResolveAdapterNoPresentFamily(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.present = map[int]bool{}

	_, err := ResolveAdapter(adapter, nil)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestResolveAdapterMissingExtension(t *testing.T) {
	adapter := newFakeAdapter()

	_, err := ResolveAdapter(adapter, []string{"VK_KHR_swapchain", "VK_EXT_absent"})
	require.ErrorIs(t, err, ErrUnsupported)
	require.Contains(t, errors.FlattenDetails(err), "VK_EXT_absent")
}

func TestResolveAdapterEmptySurface(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.formats = nil

	_, err := ResolveAdapter(adapter, nil)
	require.ErrorIs(t, err, ErrUnsupported)

	adapter = newFakeAdapter()
	adapter.modes = nil

	_, err = ResolveAdapter(adapter, nil)
	require.ErrorIs(t, err, ErrUnsupported)
}
