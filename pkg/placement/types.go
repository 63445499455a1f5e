// Package placement implements §4.E's NodeAssignment: turning a
// ServiceSpec's PlacementSpec into a concrete list of (hostname, network,
// name) triples. Grounded on the teacher's pkg/plan/validator.go
// Validator/CheckFunc composition style, repurposed from plan preflight
// checks into this package's three-rule resolver.
package placement

// HostEntry is one resolved placement target.
type HostEntry struct {
	Hostname string
	Network  string
	Name     string
}

// Spec mirrors §3's PlacementSpec: one of Hosts, Label, or Count drives
// resolution, checked in that order, the first non-empty one winning.
// Setting more than one is not rejected; nothing validates mutual
// exclusivity. Arch
// narrows the count-based rule's candidate pool when the HostLister also
// satisfies ArchLister (§4 Data Model supplement: "pkg/placement may
// filter candidate hosts by arch fact").
type Spec struct {
	Hosts []HostEntry
	Label string
	Count int
	Arch  string
}

// ServiceSpec is §3's ServiceSpec: a typed, named, placed, counted service.
type ServiceSpec struct {
	Type      string
	Name      string
	Placement Spec
}

// HostLister supplies the candidate host pools Resolve needs: every
// registered host, and the subset carrying a given label. Implemented by
// *inventory.Inventory without placement importing it.
type HostLister interface {
	Hosts() []string
	HostsWithLabel(label string) []string
}

// Scheduler picks count hosts out of candidates, or fails. SimpleScheduler
// is the default (§4.E: "shuffle the candidate host list, take the first
// count").
type Scheduler func(candidates []string, count int) ([]string, error)

// ArchLister optionally narrows the count-based rule's candidate pool to
// hosts reporting a given CPU architecture fact. A HostLister that
// doesn't track facts simply doesn't satisfy this; Resolve then leaves
// Arch unapplied rather than erroring.
type ArchLister interface {
	HostsWithArch(arch string) []string
}
