package main

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zph/fleetd/pkg/clusterops"
	"github.com/zph/fleetd/pkg/completion"
	"github.com/zph/fleetd/pkg/configstore"
	"github.com/zph/fleetd/pkg/daemon"
	"github.com/zph/fleetd/pkg/executor"
	"github.com/zph/fleetd/pkg/health"
	"github.com/zph/fleetd/pkg/inventory"
	"github.com/zph/fleetd/pkg/log"
	"github.com/zph/fleetd/pkg/service"
	"github.com/zph/fleetd/pkg/upgrade"
)

const (
	deviceCacheTimeout = 600 * time.Second
	daemonCacheTimeout = 60 * time.Second
	factsCacheTimeout  = 300 * time.Second
	poolSize           = 1
)

var (
	flagBaseDir      string
	flagFSID         string
	flagSSHUser      string
	flagSSHIdentity  string
	flagSSHPort      int
	flagDispatchMode string
	flagHelperPath   string
	flagVerbose      bool
)

// invAddressResolver adapts *inventory.Inventory to executor.AddressResolver.
// The executor is constructed before the inventory exists (the inventory
// itself depends on a Remote), so this resolver is handed to NewSSHRemote
// empty and wired up once the inventory is built (§4.A/§4.D wiring order).
type invAddressResolver struct {
	inv *inventory.Inventory
}

func (r *invAddressResolver) ResolveAddr(host string) (string, bool) {
	if r.inv == nil {
		return "", false
	}
	entry, ok := r.inv.Get(host)
	if !ok || entry.Addr == "" {
		return "", false
	}
	return entry.Addr, true
}

// app bundles every long-lived dependency the command surface operates
// against, built once in rootCmd's PersistentPreRunE (§5 ownership: "the
// engine owns the inventory, both caches, open host connections, the
// worker pool, and the upgrade state").
type app struct {
	cs        configstore.Store
	pool      *completion.Pool
	health    *health.LogSink
	ops       clusterops.ClusterOps
	remote    executor.Remote
	inventory *inventory.Inventory
	lifecycle *daemon.Lifecycle
	states    *upgrade.StateManager
	engine    *upgrade.Engine
}

// configStoreGet/Set/Delete give cmd/fleetctl's cephadm credential
// plumbing direct access to the shared config store without every
// command needing its own *configstore.FileStore wiring.
func (a *app) configStoreGet(key string) ([]byte, bool, error) { return a.cs.Get(key) }
func (a *app) configStoreSet(key string, v []byte) error       { return a.cs.Set(key, v) }
func (a *app) configStoreDelete(key string) error               { return a.cs.Delete(key) }

var theApp *app

func buildApp() (*app, error) {
	cs, err := configstore.NewFileStore(flagBaseDir)
	if err != nil {
		return nil, err
	}

	// The manager host's own mon-command RPC implementation is an
	// external collaborator (§1 Non-goals); clusterops.Fake is the only
	// concrete ClusterOps this repo carries, so the command surface
	// drives against it directly rather than against a real cluster.
	ops := clusterops.NewFake()

	resolver := &invAddressResolver{}
	mode := executor.DispatchRoot
	if flagDispatchMode == "packaged" {
		mode = executor.DispatchPackaged
	}
	sshRemote := executor.NewSSHRemote(executor.SSHConfig{
		User:         flagSSHUser,
		Port:         flagSSHPort,
		IdentityFile: flagSSHIdentity,
	}, mode, flagFSID, resolver, ops)
	if flagHelperPath != "" {
		sshRemote.SetHelperPath(flagHelperPath)
	}

	healthSink := health.NewLogSink()
	gate := noopWaker{}

	inv := inventory.New(cs, sshRemote, gate, daemonCacheTimeout, deviceCacheTimeout, factsCacheTimeout)
	resolver.inv = inv
	if err := inv.Load(); err != nil {
		return nil, err
	}

	lifecycle := daemon.NewLifecycle(sshRemote, ops, inv.DaemonCache(), flagFSID)

	states := upgrade.NewStateManager(cs)
	if err := states.Load(); err != nil {
		return nil, err
	}
	engine := upgrade.NewEngine(states, inv, ops, lifecycle, healthSink)

	return &app{
		cs:        cs,
		pool:      completion.NewPool(poolSize),
		health:    healthSink,
		ops:       ops,
		remote:    sshRemote,
		inventory: inv,
		lifecycle: lifecycle,
		states:    states,
		engine:    engine,
	}, nil
}

// noopWaker satisfies inventory.Waker for standalone CLI invocations: each
// fleetctl process exits after one command, so there is no serve loop in
// this process to wake. The long-running manager module wires
// *serve.Gate here instead (§4.D Waker doc comment).
type noopWaker struct{}

func (noopWaker) Wake() {}

// reconcilerFor builds a service.Reconciler for daemonType. Manager
// connectivity tracking lives in the pluggable manager (out of scope,
// §1), so Connective is left nil and scale-down falls back to the
// reconciler's documented arbitrary-order victim selection.
func (a *app) reconcilerFor() *service.Reconciler {
	return service.NewReconciler(a.inventory, a.lifecycle, nil)
}

var rootCmd = &cobra.Command{
	Use:   "fleetctl",
	Short: "Fleet control plane for a container-based storage cluster",
	Long: `fleetctl drives the reconciliation engine and daemon lifecycle manager
of a container-based cluster orchestrator: host registration, service
placement, daemon create/remove/action, and rolling image upgrades.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagVerbose {
			log.SetLevel(logrus.DebugLevel)
		}
		a, err := buildApp()
		if err != nil {
			return err
		}
		theApp = a
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBaseDir, "base-dir", "/var/lib/fleetd", "config store base directory")
	rootCmd.PersistentFlags().StringVar(&flagFSID, "fsid", "", "cluster fsid")
	rootCmd.PersistentFlags().StringVar(&flagSSHUser, "ssh-user", "root", "SSH user for remote dispatch")
	rootCmd.PersistentFlags().StringVar(&flagSSHIdentity, "ssh-identity", "", "SSH identity file")
	rootCmd.PersistentFlags().IntVar(&flagSSHPort, "ssh-port", 22, "SSH port")
	rootCmd.PersistentFlags().StringVar(&flagDispatchMode, "dispatch-mode", "root", "helper dispatch mode: root or packaged")
	rootCmd.PersistentFlags().StringVar(&flagHelperPath, "helper-path", "", "installed helper binary path (packaged mode)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
}
