package placement

import (
	"fmt"
	"math/rand/v2"

	"github.com/zph/fleetd/pkg/ferrors"
)

// Resolve implements §4.E's three ordered rules, mutating spec.Placement.Hosts
// in place. The first matching rule wins:
//  1. explicit hosts already set → leave unchanged (imperative)
//  2. a label selector → every host carrying that label
//  3. a count → schedulerFn over every registered host
func Resolve(spec *ServiceSpec, hosts HostLister, schedulerFn Scheduler) error {
	if len(spec.Placement.Hosts) > 0 {
		return nil
	}

	if spec.Placement.Label != "" {
		candidates := hosts.HostsWithLabel(spec.Placement.Label)
		if len(candidates) == 0 {
			return ferrors.New(ferrors.KindPlacement, fmt.Sprintf("no hosts carry label %q", spec.Placement.Label))
		}
		spec.Placement.Hosts = toEntries(candidates, spec.Name)
		return nil
	}

	if spec.Placement.Count > 0 {
		if schedulerFn == nil {
			schedulerFn = SimpleScheduler
		}
		candidates := hosts.Hosts()
		if spec.Placement.Arch != "" {
			if archLister, ok := hosts.(ArchLister); ok {
				candidates = archLister.HostsWithArch(spec.Placement.Arch)
			}
		}
		chosen, err := schedulerFn(candidates, spec.Placement.Count)
		if err != nil {
			return err
		}
		spec.Placement.Hosts = toEntries(chosen, spec.Name)
		return nil
	}

	return ferrors.New(ferrors.KindPlacement, "placement spec has no hosts, label, or count")
}

// SimpleScheduler is §4.E's default scheduler: shuffle the candidate pool,
// take the first count.
func SimpleScheduler(candidates []string, count int) ([]string, error) {
	if len(candidates) == 0 {
		return nil, ferrors.New(ferrors.KindPlacement, "empty candidate host pool")
	}
	if count > len(candidates) {
		return nil, ferrors.New(ferrors.KindPlacement, fmt.Sprintf(
			"requested %d hosts but only %d available", count, len(candidates)))
	}

	shuffled := append([]string(nil), candidates...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:count], nil
}

// ValidateMonNetwork enforces §4.E's monitor-placement invariant: every
// mon placement entry must carry a network. Grounded on add_mon/
// _update_mons in original_source's cephadm module.py (lines 1873-1876,
// 1924-1927), which reject a bare hostname with "Host '{}' is missing a
// network spec" before _create_mon ever runs — validation lives at the
// caller, not inside daemon creation itself.
func ValidateMonNetwork(spec *ServiceSpec) error {
	if spec.Type != "mon" {
		return nil
	}
	for _, h := range spec.Placement.Hosts {
		if h.Network == "" {
			return ferrors.New(ferrors.KindValidation, fmt.Sprintf("host %q is missing a network spec", h.Hostname))
		}
	}
	return nil
}

func toEntries(hostnames []string, name string) []HostEntry {
	out := make([]HostEntry, 0, len(hostnames))
	for _, h := range hostnames {
		out = append(out, HostEntry{Hostname: h, Name: name})
	}
	return out
}
