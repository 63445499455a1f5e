package executor

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/zph/fleetd/pkg/ferrors"
	"github.com/zph/fleetd/pkg/log"
)

// SSHConfig holds the connection parameters shared by every dialed host.
// Adapted from the teacher's per-host SSHConfig, generalized to a single
// fleet-wide config (one user, one identity, shared across hosts) since
// this repo dials every host the same way instead of one executor per
// config.
type SSHConfig struct {
	User         string
	Port         int
	IdentityFile string
	Password     string
	Timeout      time.Duration
}

func (c SSHConfig) withDefaults() SSHConfig {
	if c.Port == 0 {
		c.Port = 22
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.User == "" {
		c.User = "root"
	}
	return c
}

type sshConn struct {
	client    *ssh.Client
	agentConn net.Conn
}

func (c *sshConn) close() error {
	var errs []error
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.agentConn != nil {
		if err := c.agentConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing connection: %v", errs)
	}
	return nil
}

// SSHRemote is the production Remote implementation: one cached
// *ssh.Client per host address, dispatched through a root or packaged
// strategy (§4.A). Grounded on the teacher's SSHExecutor dial/auth
// precedence (key file, then agent, then password), generalized from a
// single fixed connection into connPool, a map keyed by resolved address
// the way pkg/cluster/manager.go's createExecutors builds a
// map[string]Executor — but long-lived across calls and reset only on
// transport failure rather than rebuilt per invocation.
type SSHRemote struct {
	mu    sync.Mutex
	conns map[string]*sshConn

	cfg  SSHConfig
	fsid string
	mode DispatchMode

	addresses AddressResolver
	images    ImageResolver

	helperPayload []byte
	helperPath    string

	dial func(addr string, cfg SSHConfig) (*ssh.Client, net.Conn, error)

	log log.Logger
}

// NewSSHRemote constructs a Remote dispatching in mode against the given
// cluster fsid, resolving hostnames/images through the supplied
// dependencies.
func NewSSHRemote(cfg SSHConfig, mode DispatchMode, fsid string, addresses AddressResolver, images ImageResolver) *SSHRemote {
	return &SSHRemote{
		conns:     make(map[string]*sshConn),
		cfg:       cfg.withDefaults(),
		fsid:      fsid,
		mode:      mode,
		addresses: addresses,
		images:    images,
		dial:      dialSSH,
		log:       log.With("executor", nil),
	}
}

// SetHelperPayload configures the inline script shipped in root dispatch
// mode; SetHelperPath configures the installed binary path used in
// packaged mode.
func (r *SSHRemote) SetHelperPayload(payload []byte) { r.helperPayload = payload }
func (r *SSHRemote) SetHelperPath(path string)        { r.helperPath = path }

func (r *SSHRemote) resolveAddr(host string) string {
	if r.addresses != nil {
		if addr, ok := r.addresses.ResolveAddr(host); ok {
			return addr
		}
	}
	return host
}

func (r *SSHRemote) connFor(addr string) (*sshConn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.conns[addr]; ok {
		return c, nil
	}

	client, agentConn, err := r.dial(addr, r.cfg)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindRemoteExecution, "dial "+addr, err)
	}
	c := &sshConn{client: client, agentConn: agentConn}
	r.conns[addr] = c
	return c, nil
}

// resetConn drops addr's cached connection after a transport failure so
// the next call redials (§4.A: "on transport failure reset the
// connection").
func (r *SSHRemote) resetConn(addr string) {
	r.mu.Lock()
	c, ok := r.conns[addr]
	delete(r.conns, addr)
	r.mu.Unlock()
	if ok {
		_ = c.close()
	}
}

func (r *SSHRemote) dispatcher() dispatcher {
	if r.mode == DispatchPackaged {
		return &packagedDispatcher{helperPath: r.helperPath}
	}
	return &rootDispatcher{helper: r.helperPayload}
}

// Run executes one Request against host (§4.A).
func (r *SSHRemote) Run(ctx context.Context, host string, req Request) (Result, error) {
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	reqLog := r.log.WithField("corr_id", req.CorrelationID).WithField("host", host).WithField("command", req.Command)
	reqLog.Debug("dispatching remote command")

	addr := r.resolveAddr(host)
	conn, err := r.connFor(addr)
	if err != nil {
		if req.ErrorOK {
			return Result{Stderr: err.Error(), Code: 1}, nil
		}
		return Result{}, err
	}

	image := req.Image
	if image == "" && r.images != nil {
		image, err = r.images.GetImage(deriveEntity(req.Entity))
		if err != nil {
			return Result{}, ferrors.Wrap(ferrors.KindRemoteExecution, "resolve image for "+req.Entity, err)
		}
	}

	argv := buildArgv(image, req.Command, r.fsid, req.NoFSID, req.Args)
	cmd, stdin := r.dispatcher().build(argv, req.Stdin)

	res, runErr := runSession(ctx, conn.client, cmd, stdin)
	if runErr != nil {
		r.resetConn(addr)
		reqLog.WithError(runErr).Warn("remote command transport failure")
		if req.ErrorOK {
			return Result{Stderr: runErr.Error(), Code: 1}, nil
		}
		return Result{}, ferrors.Wrap(ferrors.KindRemoteExecution, fmt.Sprintf("%s %s on %s", req.Command, req.Entity, host), runErr)
	}

	if res.Code != 0 && !req.ErrorOK {
		reqLog.WithField("code", res.Code).Warn("remote command exited non-zero")
		return res, ferrors.New(ferrors.KindRemoteExecution,
			fmt.Sprintf("%s %s on %s exited %d: %s", req.Command, req.Entity, host, res.Code, res.Stderr))
	}
	reqLog.Debug("remote command completed")
	return res, nil
}

// CheckHost dials host and verifies its reported hostname matches, the
// synchronous precondition add_host requires before the inventory admits
// a new entry (§4.D).
func (r *SSHRemote) CheckHost(ctx context.Context, host string) (HostCheckResult, error) {
	addr := r.resolveAddr(host)
	conn, err := r.connFor(addr)
	if err != nil {
		return HostCheckResult{Hostname: host, Addr: addr, OK: false, Reason: err.Error()}, nil
	}

	res, err := runSession(ctx, conn.client, "hostname", nil)
	if err != nil {
		r.resetConn(addr)
		return HostCheckResult{Hostname: host, Addr: addr, OK: false, Reason: err.Error()}, nil
	}

	reported := strings.TrimSpace(res.Stdout)
	if reported != host && !strings.HasPrefix(reported, host+".") {
		return HostCheckResult{
			Hostname: host, Addr: addr, OK: false,
			Reason: fmt.Sprintf("expected hostname %q, host reports %q", host, reported),
		}, nil
	}
	return HostCheckResult{Hostname: host, Addr: addr, OK: true}, nil
}

// GatherFacts collects host's OS, arch, kernel, and free-memory facts
// (§4 Data Model supplement), the inspection the original performs during
// check-host/bootstrap.
func (r *SSHRemote) GatherFacts(ctx context.Context, host string) (Facts, error) {
	addr := r.resolveAddr(host)
	conn, err := r.connFor(addr)
	if err != nil {
		return Facts{}, err
	}

	res, err := runSession(ctx, conn.client, "uname -s; uname -m; uname -r; cat /proc/meminfo", nil)
	if err != nil {
		r.resetConn(addr)
		return Facts{}, ferrors.Wrap(ferrors.KindRemoteExecution, "gather facts for "+host, err)
	}
	return parseFacts(res.Stdout), nil
}

func parseFacts(out string) Facts {
	lines := strings.SplitN(out, "\n", 4)
	var f Facts
	if len(lines) > 0 {
		f.OS = strings.TrimSpace(lines[0])
	}
	if len(lines) > 1 {
		f.Arch = strings.TrimSpace(lines[1])
	}
	if len(lines) > 2 {
		f.Kernel = strings.TrimSpace(lines[2])
	}
	if len(lines) > 3 {
		f.MemoryFreeKB = parseMemFree(lines[3])
	}
	return f
}

func parseMemFree(meminfo string) uint64 {
	for _, line := range strings.Split(meminfo, "\n") {
		if strings.HasPrefix(line, "MemAvailable:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				v, _ := strconv.ParseUint(fields[1], 10, 64)
				return v
			}
		}
	}
	return 0
}

// Close closes and forgets host's cached connection, if any.
func (r *SSHRemote) Close(host string) error {
	addr := r.resolveAddr(host)
	r.mu.Lock()
	c, ok := r.conns[addr]
	delete(r.conns, addr)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return c.close()
}

// CloseAll closes every cached connection (shutdown path).
func (r *SSHRemote) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*sshConn)
	r.mu.Unlock()

	for addr, c := range conns {
		if err := c.close(); err != nil {
			r.log.WithField("addr", addr).WithError(err).Warn("error closing connection")
		}
	}
}

// runSession executes cmd with in on stdin over an established client,
// returning stdout/stderr/exit code. A context deadline is honored by
// racing session completion against ctx.Done and closing the session on
// timeout.
func runSession(ctx context.Context, client *ssh.Client, cmd string, in []byte) (Result, error) {
	session, err := client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if in != nil {
		session.Stdin = bytes.NewReader(in)
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return Result{}, ctx.Err()
	case runErr := <-done:
		code := 0
		if runErr != nil {
			if exitErr, ok := runErr.(*ssh.ExitError); ok {
				code = exitErr.ExitStatus()
			} else {
				return Result{}, runErr
			}
		}
		return Result{Stdout: stdout.String(), Stderr: stderr.String(), Code: code}, nil
	}
}

// dialSSH opens an *ssh.Client against addr, trying identity file, agent,
// then password authentication in that order (§4.A). Grounded verbatim on
// the teacher's NewSSHExecutor precedence.
func dialSSH(addr string, cfg SSHConfig) (*ssh.Client, net.Conn, error) {
	clientCfg := &ssh.ClientConfig{
		User:            cfg.User,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.Timeout,
	}

	if cfg.IdentityFile != "" {
		key, err := os.ReadFile(cfg.IdentityFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read identity file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse identity file: %w", err)
		}
		clientCfg.Auth = append(clientCfg.Auth, ssh.PublicKeys(signer))
	}

	var agentConn net.Conn
	if conn, err := sshAgentConn(); err == nil {
		sshAgent := agent.NewClient(conn)
		if signers, err := sshAgent.Signers(); err == nil && len(signers) > 0 {
			clientCfg.Auth = append(clientCfg.Auth, ssh.PublicKeys(signers...))
			agentConn = conn
		} else {
			conn.Close()
		}
	}

	if cfg.Password != "" {
		clientCfg.Auth = append(clientCfg.Auth, ssh.Password(cfg.Password))
	}

	if len(clientCfg.Auth) == 0 {
		return nil, nil, fmt.Errorf("no authentication method available (need identity file, agent, or password)")
	}

	dialAddr := addr
	if !strings.Contains(addr, ":") {
		dialAddr = fmt.Sprintf("%s:%d", addr, cfg.Port)
	}
	client, err := ssh.Dial("tcp", dialAddr, clientCfg)
	if err != nil {
		if agentConn != nil {
			agentConn.Close()
		}
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", dialAddr, err)
	}
	return client, agentConn, nil
}

func sshAgentConn() (net.Conn, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK not set")
	}
	return net.Dial("unix", sock)
}
