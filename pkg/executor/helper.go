package executor

import (
	"encoding/json"
	"fmt"
	"time"
)

// LsEntry is one element of the helper's `ls` output: a point-in-time
// snapshot of a daemon running on the host the command targeted (§4.D
// refresh action). Fields mirror the cephadm-style `ls` payload this
// helper protocol is modeled on.
type LsEntry struct {
	Style       string `json:"style"`
	Name        string `json:"name"`
	Fsid        string `json:"fsid"`
	ContainerID string `json:"container_id"`
	Image       string `json:"image_name"`
	ImageID     string `json:"image_id"`
	Version     string `json:"version"`
	State       string `json:"state"`
}

// DecodeLs parses the `ls` helper output, stamping nothing itself — the
// caller (pkg/inventory) attaches the refresh timestamp, since that time
// belongs to when the cache entry is written, not when the bytes were
// parsed.
func DecodeLs(stdout string) ([]LsEntry, error) {
	var entries []LsEntry
	if err := json.Unmarshal([]byte(stdout), &entries); err != nil {
		return nil, fmt.Errorf("failed to decode ls output: %w", err)
	}
	return entries, nil
}

// InspectImageResult is the helper's `inspect-image` output.
type InspectImageResult struct {
	ImageID     string `json:"image_id"`
	RepoDigests []string `json:"repo_digests"`
}

func DecodeInspectImage(stdout string) (InspectImageResult, error) {
	var res InspectImageResult
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		return InspectImageResult{}, fmt.Errorf("failed to decode inspect-image output: %w", err)
	}
	return res, nil
}

// DeviceEntry is one element of the helper's `device-ls` output: a
// storage device observed on the host the command targeted (§4.B device
// inventory cache).
type DeviceEntry struct {
	Path       string `json:"path"`
	Size       uint64 `json:"size"`
	Rotational bool   `json:"rotational"`
	Available  bool   `json:"available"`
}

// DecodeDeviceList parses the `device-ls` helper output.
func DecodeDeviceList(stdout string) ([]DeviceEntry, error) {
	var entries []DeviceEntry
	if err := json.Unmarshal([]byte(stdout), &entries); err != nil {
		return nil, fmt.Errorf("failed to decode device-ls output: %w", err)
	}
	return entries, nil
}

// PullResult is the helper's `pull` output, confirming the image landed
// and resolving to a concrete image id (used by the upgrade engine's
// per-step image pin, §4.H).
type PullResult struct {
	ImageID  string `json:"image_id"`
	Image    string `json:"image_name"`
	PulledAt time.Time `json:"pulled_at"`
}

func DecodePull(stdout string) (PullResult, error) {
	var res PullResult
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		return PullResult{}, fmt.Errorf("failed to decode pull output: %w", err)
	}
	return res, nil
}
