// Package service implements §4.G's reconciler: bringing a service's
// observed daemon count in line with its spec. Grounded on the teacher's
// pkg/cluster/manager.go Start/Stop fan-out and pkg/apply.DefaultApplier
// delta-driven execution, generalized from a fixed two-node MongoDB
// replica set to an arbitrary-count typed daemon service.
package service

import (
	"context"
	"fmt"

	"github.com/zph/fleetd/pkg/completion"
	"github.com/zph/fleetd/pkg/daemon"
	"github.com/zph/fleetd/pkg/ferrors"
	"github.com/zph/fleetd/pkg/inventory"
	"github.com/zph/fleetd/pkg/log"
	"github.com/zph/fleetd/pkg/placement"
)

// ManagerConnectivity reports which manager daemons are currently
// disconnected from the manager map, so downscale can prefer evicting them
// first (§4.G.3: "managers: disconnected from the manager map take
// priority").
type ManagerConnectivity interface {
	Unconnected(names []string) map[string]bool
}

// ActiveManagerAware is an optional capability a ManagerConnectivity may
// also satisfy: when it does, scaleDown's arbitrary-order fallback pass
// excludes the active manager from consideration (§8 scenario 3: "never
// removes h1"). Left unsatisfied, the fallback stays the original's
// arbitrary "remove *any* mgr" pass (module.py:2006-2012).
type ActiveManagerAware interface {
	ActiveManager() (string, error)
}

// Result summarizes one Apply call.
type Result struct {
	Status  string
	Created []string
	Removed []string
}

const monitorType = "mon"

// Reconciler drives one service type's create/remove fan-out.
type Reconciler struct {
	Inventory  *inventory.Inventory
	Lifecycle  *daemon.Lifecycle
	Connective ManagerConnectivity

	log log.Logger
}

// NewReconciler constructs a Reconciler. connective may be nil for service
// types with no connectivity concept; victim selection then falls back to
// arbitrary order.
func NewReconciler(inv *inventory.Inventory, lc *daemon.Lifecycle, connective ManagerConnectivity) *Reconciler {
	return &Reconciler{Inventory: inv, Lifecycle: lc, Connective: connective, log: log.With("service", nil)}
}

// Apply implements §4.G's resolve -> fetch -> delta flow for one spec.
func (r *Reconciler) Apply(ctx context.Context, spec *placement.ServiceSpec) (Result, error) {
	if err := placement.Resolve(spec, r.Inventory, nil); err != nil {
		return Result{}, err
	}
	if err := placement.ValidateMonNetwork(spec); err != nil {
		return Result{}, err
	}

	current, err := r.Inventory.GetDaemons(ctx, inventory.Filter{Type: spec.Type, ServiceNamePrefix: spec.Name}, false, true)
	if err != nil {
		return Result{}, err
	}

	delta := len(spec.Placement.Hosts) - len(current)
	switch {
	case delta == 0:
		return Result{Status: "the requested number exists"}, nil
	case delta > 0:
		return r.scaleUp(ctx, spec, current, delta)
	default:
		if spec.Type == monitorType {
			return Result{}, ferrors.New(ferrors.KindUnsupportedOperation, "monitor downscale is not supported")
		}
		return r.scaleDown(ctx, current, -delta)
	}
}

func (r *Reconciler) scaleUp(ctx context.Context, spec *placement.ServiceSpec, current []daemon.Description, delta int) (Result, error) {
	occupied := make(map[string]bool, len(current))
	for _, d := range current {
		occupied[d.Host] = true
	}

	var targets []placement.HostEntry
	for _, h := range spec.Placement.Hosts {
		if !occupied[h.Hostname] {
			targets = append(targets, h)
		}
	}
	if len(targets) < delta {
		return Result{}, ferrors.New(ferrors.KindPlacement, fmt.Sprintf(
			"need %d more hosts for %s but only %d available", delta, spec.Type, len(targets)))
	}

	existingNames := make(map[string]bool, len(current))
	for _, d := range current {
		existingNames[d.ID] = true
	}

	var created []string
	for i := 0; i < delta; i++ {
		target := targets[i]
		id, err := daemon.GenerateUniqueName(spec.Name, target.Hostname, existingNames)
		if err != nil {
			return Result{}, err
		}
		name := spec.Type + "." + id
		existingNames[id] = true

		if _, err := r.Lifecycle.Create(ctx, spec.Type, id, target.Hostname, daemon.CreateOptions{Network: target.Network}); err != nil {
			return Result{}, err
		}
		created = append(created, name)
	}
	return Result{Status: "scaled up", Created: created}, nil
}

// scaleDown chooses n victims, preferring unconnected managers when
// Connective is set, and removes them. The §9 correction tracks a
// selected set across the priority pass and the fallback pass so a
// daemon is never queued for removal twice.
func (r *Reconciler) scaleDown(ctx context.Context, current []daemon.Description, n int) (Result, error) {
	selected := make(map[string]bool, n)
	var victims []daemon.Description

	protected := ""
	if aware, ok := r.Connective.(ActiveManagerAware); ok {
		if active, err := aware.ActiveManager(); err == nil {
			protected = active
		}
	}

	if r.Connective != nil {
		names := make([]string, 0, len(current))
		for _, d := range current {
			names = append(names, d.Name())
		}
		unconnected := r.Connective.Unconnected(names)
		for _, d := range current {
			if len(victims) >= n {
				break
			}
			if unconnected[d.Name()] && !selected[d.Name()] {
				victims = append(victims, d)
				selected[d.Name()] = true
			}
		}
	}

	for _, d := range current {
		if len(victims) >= n {
			break
		}
		if !selected[d.Name()] && d.Name() != protected {
			victims = append(victims, d)
			selected[d.Name()] = true
		}
	}

	// If excluding the active manager left the pool short, fall back to
	// the original's literal arbitrary-order behavior rather than
	// under-removing.
	if len(victims) < n {
		for _, d := range current {
			if len(victims) >= n {
				break
			}
			if !selected[d.Name()] {
				victims = append(victims, d)
				selected[d.Name()] = true
			}
		}
	}

	var removed []string
	for _, d := range victims {
		if err := r.Lifecycle.Remove(ctx, d.Name(), d.Host, false); err != nil {
			return Result{Removed: removed}, err
		}
		removed = append(removed, d.Name())
	}
	return Result{Status: "scaled down", Removed: removed}, nil
}

// ServiceAction resolves every daemon matching (type, name) and fans out
// action across them concurrently via completion.AsyncMap (§4.G:
// "service_action(action, type, name) resolves matching daemons, then
// fans out F.action over all of them").
func (r *Reconciler) ServiceAction(ctx context.Context, pool *completion.Pool, action daemon.Action, daemonType, name string) (*completion.Completion[[]error], error) {
	matches, err := r.Inventory.GetDaemons(ctx, inventory.Filter{Type: daemonType, ServiceNamePrefix: name}, false, true)
	if err != nil {
		return nil, err
	}

	c := completion.AsyncMap(pool, ctx, matches, func(ctx context.Context, d daemon.Description) (error, error) {
		typ, id := splitName(d.Name())
		return r.Lifecycle.Action(ctx, typ, id, d.Host, action), nil
	})
	return c, nil
}

func splitName(name string) (typ, id string) {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return name[:i], name[i+1:]
		}
	}
	return name, ""
}
