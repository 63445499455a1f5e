package clusterops

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory ClusterOps double for tests across pkg/daemon,
// pkg/service, and pkg/upgrade.
type Fake struct {
	mu sync.Mutex

	Keys          map[string]string
	MinimalCfg    []byte
	OSDFSIDs      map[string]string
	Images        map[string]string // entity -> image ref
	GlobalImage   string
	TypeImages    map[string]string
	DaemonImages  map[string]string
	OkToStopFunc  func(daemonType string, names []string) (bool, error)
	ActiveMgr     string
	StandbyMgrs   []string
	FailoverCalls int
	InspectFunc   func(host, imageRef string) (string, string, error)
}

// NewFake returns a Fake with every map initialized.
func NewFake() *Fake {
	return &Fake{
		Keys:         make(map[string]string),
		OSDFSIDs:     make(map[string]string),
		Images:       make(map[string]string),
		TypeImages:   make(map[string]string),
		DaemonImages: make(map[string]string),
	}
}

func (f *Fake) AuthGet(entity string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if k, ok := f.Keys[entity]; ok {
		return k, nil
	}
	return "", fmt.Errorf("no key for %s", entity)
}

func (f *Fake) AuthGetOrCreate(entity string, caps map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if k, ok := f.Keys[entity]; ok {
		return k, nil
	}
	k := "fake-key-" + entity
	f.Keys[entity] = k
	return k, nil
}

func (f *Fake) MinimalConfig() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MinimalCfg != nil {
		return f.MinimalCfg, nil
	}
	return []byte("# minimal cluster config\n"), nil
}

func (f *Fake) OSDFSID(id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.OSDFSIDs[id]; ok {
		return u, nil
	}
	return "", fmt.Errorf("no osd fsid recorded for %s", id)
}

func (f *Fake) GetImage(entity string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if img, ok := f.Images[entity]; ok {
		return img, nil
	}
	if f.GlobalImage != "" {
		return f.GlobalImage, nil
	}
	return "", fmt.Errorf("no image configured for %s", entity)
}

func (f *Fake) SetContainerImage(scope Scope, name, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch scope {
	case ScopeGlobal:
		f.GlobalImage = image
	case ScopeType:
		f.TypeImages[name] = image
	case ScopeDaemon:
		f.DaemonImages[name] = image
	}
	return nil
}

func (f *Fake) ClearContainerImage(scope Scope, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch scope {
	case ScopeGlobal:
		f.GlobalImage = ""
	case ScopeType:
		delete(f.TypeImages, name)
	case ScopeDaemon:
		delete(f.DaemonImages, name)
	}
	return nil
}

func (f *Fake) OkToStop(ctx context.Context, daemonType string, names []string) (bool, error) {
	if f.OkToStopFunc != nil {
		return f.OkToStopFunc(daemonType, names)
	}
	return true, nil
}

func (f *Fake) ActiveManager() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ActiveMgr, nil
}

func (f *Fake) StandbyManagers() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.StandbyMgrs...), nil
}

func (f *Fake) FailoverManager() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailoverCalls++
	if len(f.StandbyMgrs) == 0 {
		return fmt.Errorf("no standby managers available")
	}
	newActive := f.StandbyMgrs[0]
	f.StandbyMgrs = append(f.StandbyMgrs[1:], f.ActiveMgr)
	f.ActiveMgr = newActive
	return nil
}

func (f *Fake) InspectTargetImage(ctx context.Context, host, imageRef string) (string, string, error) {
	if f.InspectFunc != nil {
		return f.InspectFunc(host, imageRef)
	}
	return "image-id-" + imageRef, "v-" + imageRef, nil
}
