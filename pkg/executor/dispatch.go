package executor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// remoteInterpreters lists the known python interpreters for helpers
// shipped inline (§4.A: "a remote language interpreter chosen from a known
// list"). rootDispatcher uses the first entry when no interpreter is set;
// the later entries are not tried as fallbacks.
var remoteInterpreters = []string{
	"/usr/bin/python3",
	"/usr/libexec/platform-python",
	"/usr/bin/python",
}

// dispatcher builds the shell command and stdin payload for one Request's
// resolved argument vector.
type dispatcher interface {
	build(argv []string, stdin []byte) (cmd string, in []byte)
}

// rootDispatcher concatenates a small python prelude that injects argv
// (and, if present, stdin) as literals ahead of the helper payload, then
// runs the whole thing through an interpreter reading its script from
// stdin (§4.A root mode).
type rootDispatcher struct {
	helper      []byte
	interpreter string
}

func (d *rootDispatcher) build(argv []string, stdin []byte) (string, []byte) {
	argvJSON, _ := json.Marshal(argv)

	var script bytes.Buffer
	script.WriteString("import sys, io\n")
	fmt.Fprintf(&script, "sys.argv = %s\n", argvJSON)
	if len(stdin) > 0 {
		stdinJSON, _ := json.Marshal(string(stdin))
		fmt.Fprintf(&script, "sys.stdin = io.StringIO(%s)\n", stdinJSON)
	}
	script.Write(d.helper)

	interpreter := d.interpreter
	if interpreter == "" {
		interpreter = remoteInterpreters[0]
	}
	return interpreter + " -", script.Bytes()
}

// packagedDispatcher invokes an already-installed helper binary with sudo,
// passing stdin straight through (§4.A packaged mode).
type packagedDispatcher struct {
	helperPath string
}

func (d *packagedDispatcher) build(argv []string, stdin []byte) (string, []byte) {
	path := d.helperPath
	if path == "" {
		path = "/usr/libexec/fleetd/helper"
	}
	parts := make([]string, 0, len(argv)+2)
	parts = append(parts, "sudo", shellQuote(path))
	for _, a := range argv {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " "), stdin
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// buildArgv assembles the [--image IMG, command, --fsid FSID?, ...args]
// vector every dispatcher shares (§4.A).
func buildArgv(image, command, fsid string, noFSID bool, extra []string) []string {
	argv := []string{"--image", image, command}
	if !noFSID && fsid != "" {
		argv = append(argv, "--fsid", fsid)
	}
	return append(argv, extra...)
}
