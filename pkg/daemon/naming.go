package daemon

import (
	"math/rand/v2"
	"strings"

	"github.com/zph/fleetd/pkg/ferrors"
)

const nameTagLetters = "abcdefghijklmnopqrstuvwxyz"
const nameTagLength = 6
const maxNameAttempts = 20

// GenerateUniqueName mints "[prefix.]shorthost.xxxxxx", retrying against
// existing on collision (§4.F: "unique-name generator"). prefix is
// typically the service name for a daemon type that carries one (e.g.
// "prometheus" scrape instances); pass "" for types named by host alone.
// Adapted from the teacher's naming.GetProgramName ("type-port" keying),
// generalized to the prefix.host.tag scheme and math/rand/v2's randomness
// instead of a port number.
func GenerateUniqueName(prefix, host string, existing map[string]bool) (string, error) {
	short := shortHost(host)
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		candidate := short + "." + randomTag()
		if prefix != "" {
			candidate = prefix + "." + candidate
		}
		if !existing[candidate] {
			return candidate, nil
		}
	}
	return "", ferrors.New(ferrors.KindNameCollision, "exhausted attempts generating a unique name for host "+host)
}

// ValidateForcedName rejects a caller-forced name already present in
// existing (§4.F: "if a caller forces a name already in use ->
// NameCollisionError").
func ValidateForcedName(name string, existing map[string]bool) error {
	if existing[name] {
		return ferrors.New(ferrors.KindNameCollision, "name "+name+" is already in use")
	}
	return nil
}

func shortHost(host string) string {
	if i := strings.IndexByte(host, '.'); i >= 0 {
		return host[:i]
	}
	return host
}

func randomTag() string {
	b := make([]byte, nameTagLength)
	for i := range b {
		b[i] = nameTagLetters[rand.IntN(len(nameTagLetters))]
	}
	return string(b)
}
