package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zph/fleetd/pkg/ferrors"
)

type fakeHosts struct {
	all     []string
	labeled map[string][]string
}

func (f fakeHosts) Hosts() []string                     { return f.all }
func (f fakeHosts) HostsWithLabel(label string) []string { return f.labeled[label] }

func TestResolve_ExplicitHostsLeftUnchanged(t *testing.T) {
	spec := &ServiceSpec{Name: "mon", Placement: Spec{Hosts: []HostEntry{{Hostname: "h1"}}}}
	err := Resolve(spec, fakeHosts{all: []string{"h2", "h3"}}, nil)
	require.NoError(t, err)
	require.Len(t, spec.Placement.Hosts, 1)
	assert.Equal(t, "h1", spec.Placement.Hosts[0].Hostname)
}

func TestResolve_LabelSelectorWins(t *testing.T) {
	spec := &ServiceSpec{Name: "mon", Placement: Spec{Label: "mon-host"}}
	hosts := fakeHosts{all: []string{"h1", "h2"}, labeled: map[string][]string{"mon-host": {"h2"}}}
	err := Resolve(spec, hosts, nil)
	require.NoError(t, err)
	require.Len(t, spec.Placement.Hosts, 1)
	assert.Equal(t, "h2", spec.Placement.Hosts[0].Hostname)
	assert.Equal(t, "mon", spec.Placement.Hosts[0].Name)
}

func TestResolve_LabelSelectorEmptyPoolFails(t *testing.T) {
	spec := &ServiceSpec{Placement: Spec{Label: "absent"}}
	err := Resolve(spec, fakeHosts{all: []string{"h1"}}, nil)
	require.Error(t, err)
	assert.True(t, ferrors.Is(err, ferrors.KindPlacement))
}

func TestResolve_CountUsesScheduler(t *testing.T) {
	spec := &ServiceSpec{Name: "osd", Placement: Spec{Count: 2}}
	hosts := fakeHosts{all: []string{"h1", "h2", "h3"}}

	var seenCandidates []string
	scheduler := func(candidates []string, count int) ([]string, error) {
		seenCandidates = candidates
		return candidates[:count], nil
	}

	err := Resolve(spec, hosts, scheduler)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"h1", "h2", "h3"}, seenCandidates)
	assert.Len(t, spec.Placement.Hosts, 2)
}

func TestResolve_NoRuleMatchesFails(t *testing.T) {
	spec := &ServiceSpec{}
	err := Resolve(spec, fakeHosts{all: []string{"h1"}}, nil)
	require.Error(t, err)
}

func TestSimpleScheduler_EmptyPoolIsPlacementError(t *testing.T) {
	_, err := SimpleScheduler(nil, 1)
	require.Error(t, err)
	assert.True(t, ferrors.Is(err, ferrors.KindPlacement))
}

func TestSimpleScheduler_InsufficientPoolIsPlacementError(t *testing.T) {
	_, err := SimpleScheduler([]string{"h1"}, 3)
	require.Error(t, err)
	assert.True(t, ferrors.Is(err, ferrors.KindPlacement))
}

func TestSimpleScheduler_ReturnsExactCountFromPool(t *testing.T) {
	candidates := []string{"h1", "h2", "h3", "h4"}
	chosen, err := SimpleScheduler(candidates, 2)
	require.NoError(t, err)
	assert.Len(t, chosen, 2)
	for _, c := range chosen {
		assert.Contains(t, candidates, c)
	}
}

func TestSimpleScheduler_FullCountReturnsAllDistinct(t *testing.T) {
	candidates := []string{"h1", "h2", "h3"}
	chosen, err := SimpleScheduler(candidates, 3)
	require.NoError(t, err)
	assert.ElementsMatch(t, candidates, chosen)
}
