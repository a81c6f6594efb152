// Package sandbox drives one full compile-and-run cycle for a submission
// inside an isolated Docker container: workspace materialization, an
// optional compile phase, the run phase with piped stdin and captured
// stdout/stderr, concurrent memory sampling, wall-clock timeout
// enforcement, and guaranteed teardown on every exit path.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"

	"judge-engine/internal/catalog"
	"judge-engine/internal/judgeerr"
)

// Status is the terminal status the driver assigns to a RunOutcome.
// It mirrors the job-status wire values that apply to sandbox results
// (PENDING/PROCESSING are dispatcher-owned, not driver-owned).
type Status string

const (
	StatusCompleted        Status = "COMPLETED"
	StatusFailed           Status = "FAILED"
	StatusTimeout          Status = "TIMEOUT"
	StatusCompilationError Status = "COMPILATION_ERROR"
	StatusRuntimeError     Status = "RUNTIME_ERROR"
)

// Outcome is the result of one Driver.Execute invocation.
type Outcome struct {
	Status          Status
	Stdout          string
	Stderr          string
	CompileOutput   string
	ExitCode        int
	ExecutionTimeMs int64
	MemoryUsageKB   int64
	ErrorMessage    string
}

// Request bundles the inputs to one execution.
type Request struct {
	Language string
	Source   string
	Stdin    string
}

// Config controls container placement and default resource ceilings.
type Config struct {
	DockerHost     string
	NetworkEnabled bool
	MaxMemoryMB    int64
	MaxWallTime    time.Duration
	CompileTimeout time.Duration

	// ImagePrefix, if set, is prepended to a catalog entry's default image
	// reference (e.g. "myregistry.example.com/" + "python:3.11-slim").
	// ImageOverrides, keyed by catalog language id, replaces the image
	// outright for that language and takes precedence over ImagePrefix.
	// Both are populated from JUDGE_IMAGE_PREFIX / JUDGE_IMAGE_<LANG> by
	// the caller (spec §6 external configuration).
	ImagePrefix    string
	ImageOverrides map[string]string

	SampleInterval time.Duration
	MaxOutputBytes int64
}

// resolveImage applies ImageOverrides/ImagePrefix to a catalog entry's
// default image for languageID, returning defaultImage unchanged if
// neither knob applies.
func (d *Driver) resolveImage(languageID, defaultImage string) string {
	if override, ok := d.cfg.ImageOverrides[languageID]; ok && override != "" {
		return override
	}
	if d.cfg.ImagePrefix != "" {
		return d.cfg.ImagePrefix + defaultImage
	}
	return defaultImage
}

// DefaultConfig returns production-biased defaults.
func DefaultConfig() Config {
	return Config{
		DockerHost:     "unix:///var/run/docker.sock",
		NetworkEnabled: false,
		SampleInterval: 100 * time.Millisecond,
		MaxOutputBytes: 1 << 20, // 1 MiB capture bound, spec §8 boundary behavior
	}
}

// Driver drives sandboxed executions over the Docker Engine API.
type Driver struct {
	cfg    Config
	client *client.Client

	active int64
}

// NewDriver constructs a Driver against the configured Docker host.
func NewDriver(cfg Config) (*Driver, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithHost(cfg.DockerHost),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("docker client init: %w", err)
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 100 * time.Millisecond
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = 1 << 20
	}
	if cfg.CompileTimeout <= 0 {
		cfg.CompileTimeout = 30 * time.Second
	}
	return &Driver{cfg: cfg, client: cli}, nil
}

// Preflight verifies the container runtime is reachable, per spec §4.B step 1.
func (d *Driver) Preflight(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := d.client.Ping(ctx); err != nil {
		return judgeerr.Wrap(judgeerr.KindRuntimeUnavailable, "runtime unavailable", err)
	}
	return nil
}

// ActiveCount reports the number of executions currently in their run or
// compile phase, for Health/Introspection.
func (d *Driver) ActiveCount() int { return int(atomic.LoadInt64(&d.active)) }

// Execute runs one full compile-and-run cycle for req and returns the
// terminal Outcome. It never returns an error for ordinary judge failures
// (compile error, runtime error, timeout) — those are encoded in Outcome.
// It returns an error only for conditions the caller (the worker) must
// treat as a driver-internal failure (mapped to FAILED by the caller).
func (d *Driver) Execute(ctx context.Context, req Request) (Outcome, error) {
	if err := d.Preflight(ctx); err != nil {
		return Outcome{Status: StatusFailed, ErrorMessage: err.Error()}, nil
	}

	lang, ok := catalog.Lookup(req.Language)
	if !ok {
		return Outcome{}, judgeerr.New(judgeerr.KindValidation, "unknown language: "+req.Language)
	}
	lang = catalog.ApplyOverrides(lang, d.cfg.MaxMemoryMB, d.cfg.MaxWallTime)
	image := d.resolveImage(string(lang.ID), lang.Image)

	workspace, err := os.MkdirTemp("", "judge-run-*")
	if err != nil {
		return Outcome{}, judgeerr.Wrap(judgeerr.KindInternal, "create workspace", err)
	}
	defer os.RemoveAll(workspace)

	if err := os.WriteFile(filepath.Join(workspace, lang.Filename), []byte(req.Source), 0o644); err != nil {
		return Outcome{}, judgeerr.Wrap(judgeerr.KindInternal, "write source file", err)
	}

	atomic.AddInt64(&d.active, 1)
	defer atomic.AddInt64(&d.active, -1)

	if len(lang.CompileCommand) > 0 {
		compileTimeout := lang.CompileTimeout
		if compileTimeout <= 0 || (d.cfg.CompileTimeout > 0 && d.cfg.CompileTimeout < compileTimeout) {
			compileTimeout = d.cfg.CompileTimeout
		}
		outcome, compiled := d.runPhase(ctx, phaseRequest{
			name:      "compile",
			image:     image,
			command:   catalog.RenderCommand(lang.CompileCommand, lang.Filename),
			workspace: workspace,
			memoryMB:  lang.MemoryLimitMB,
			timeout:   compileTimeout,
			stdin:     "",
			sample:    false,
		})
		if !compiled {
			return Outcome{Status: StatusFailed, ErrorMessage: outcome.errMessage}, nil
		}
		if outcome.compileFailed {
			co := outcome.stdout
			if outcome.stderr != "" {
				co = outcome.stderr
			}
			if outcome.timedOut {
				co = "Compilation timeout"
			}
			return Outcome{
				Status:        StatusCompilationError,
				CompileOutput: co,
				ExitCode:      outcome.exitCode,
			}, nil
		}
	}

	runOutcome, ranOK := d.runPhase(ctx, phaseRequest{
		name:      "run",
		image:     image,
		command:   catalog.RenderCommand(lang.RunCommand, lang.Filename),
		workspace: workspace,
		memoryMB:  lang.MemoryLimitMB,
		timeout:   lang.RunTimeout,
		stdin:     req.Stdin,
		sample:    true,
	})
	if !ranOK {
		return Outcome{Status: StatusFailed, ErrorMessage: runOutcome.errMessage}, nil
	}

	result := Outcome{
		Stdout:          runOutcome.stdout,
		Stderr:          runOutcome.stderr,
		ExitCode:        runOutcome.exitCode,
		ExecutionTimeMs: runOutcome.elapsed.Milliseconds(),
		MemoryUsageKB:   runOutcome.peakMemoryKB,
	}

	switch {
	case runOutcome.timedOut:
		result.Status = StatusTimeout
		result.ExitCode = 124
		result.Stderr = "Time limit exceeded"
	case runOutcome.exitCode == 0:
		result.Status = StatusCompleted
	default:
		result.Status = StatusRuntimeError
	}
	return result, nil
}

type phaseRequest struct {
	name      string
	image     string
	command   []string
	workspace string
	memoryMB  int64
	timeout   time.Duration
	stdin     string
	sample    bool
}

type phaseResult struct {
	stdout        string
	stderr        string
	exitCode      int
	elapsed       time.Duration
	peakMemoryKB  int64
	timedOut      bool
	compileFailed bool
	errMessage    string
}

// runPhase launches one container (compile or run), enforces the wall-clock
// ceiling, samples memory if requested, and guarantees teardown on every
// exit path. The bool return is false only on a driver-internal failure:
// the phase's container could not be created or started, or waiting on it
// failed. Compile/run failures are encoded in the returned phaseResult
// instead.
func (d *Driver) runPhase(ctx context.Context, req phaseRequest) (phaseResult, bool) {
	const mountPath = "/tmp/workspace"

	execCtx, cancel := context.WithTimeout(ctx, req.timeout)
	defer cancel()

	memoryBytes := req.memoryMB * 1024 * 1024
	if memoryBytes <= 0 {
		memoryBytes = 128 * 1024 * 1024
	}
	pidsLimit := int64(64)

	networkMode := "none"
	if d.cfg.NetworkEnabled {
		networkMode = "bridge"
	}

	containerName := fmt.Sprintf("judge-%s-%s", req.name, uuid.New().String())

	created, err := d.client.ContainerCreate(execCtx, &container.Config{
		Image:        req.image,
		WorkingDir:   mountPath,
		Cmd:          req.command,
		AttachStdout: true,
		AttachStderr: true,
		AttachStdin:  req.stdin != "",
		OpenStdin:    req.stdin != "",
		StdinOnce:    req.stdin != "",
		User:         "1000:1000",
	}, &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: req.workspace, Target: mountPath},
		},
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,noexec,nosuid,size=64m"},
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges:true"},
		NetworkMode:    container.NetworkMode(networkMode),
		Resources: container.Resources{
			Memory:     memoryBytes,
			MemorySwap: memoryBytes,
			NanoCPUs:   1_000_000_000,
			PidsLimit:  &pidsLimit,
		},
	}, &network.NetworkingConfig{}, nil, containerName)
	if err != nil {
		return phaseResult{errMessage: "container create failed: " + err.Error()}, false
	}
	containerID := created.ID

	defer func() {
		rmCtx, rmCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer rmCancel()
		_ = d.client.ContainerRemove(rmCtx, containerID, container.RemoveOptions{Force: true})
	}()

	started := time.Now()
	if err := d.client.ContainerStart(execCtx, containerID, container.StartOptions{}); err != nil {
		return phaseResult{errMessage: "container start failed: " + err.Error()}, false
	}

	if req.stdin != "" {
		if err := d.writeStdin(execCtx, containerID, req.stdin); err != nil {
			// Non-fatal: the process may still run to completion without
			// having consumed stdin, per spec §4.B step 4.
		}
	}

	var peakKB int64
	sampleDone := make(chan struct{})
	sampleCtx, sampleCancel := context.WithCancel(execCtx)
	defer sampleCancel()
	if req.sample {
		go func() {
			defer close(sampleDone)
			peakKB = d.sampleMemory(sampleCtx, containerID)
		}()
	} else {
		close(sampleDone)
	}

	waitCh, errCh := d.client.ContainerWait(execCtx, containerID, container.WaitConditionNotRunning)

	result := phaseResult{}
	select {
	case <-execCtx.Done():
		_ = d.client.ContainerKill(context.Background(), containerID, "SIGKILL")
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			result.timedOut = true
			result.exitCode = 124
		} else {
			result.exitCode = 137
		}
	case resp := <-waitCh:
		result.exitCode = int(resp.StatusCode)
	case err := <-errCh:
		sampleCancel()
		<-sampleDone
		return phaseResult{errMessage: "container wait failed: " + err.Error()}, false
	}
	// The process has already terminated here; stop the sampler immediately
	// rather than letting it spin until execCtx's own deadline, which would
	// otherwise pin elapsed (and this worker) at the run timeout for every
	// normally-completing job.
	result.elapsed = time.Since(started)
	sampleCancel()
	<-sampleDone
	result.peakMemoryKB = peakKB

	stdout, stderr, _ := d.readLogs(context.Background(), containerID)
	result.stdout = stdout
	result.stderr = stderr
	if req.name == "compile" && result.exitCode != 0 {
		result.compileFailed = true
	}
	return result, true
}

// sampleMemory polls container stats every SampleInterval, tracking the
// observed peak in KiB. It is started right after the container starts (and
// after stdin, if any, has been written), with no fixed sleep; the first
// sample is taken one SampleInterval later. If stats are unreachable the peak stays 0 per spec §4.B edge case.
func (d *Driver) sampleMemory(ctx context.Context, containerID string) int64 {
	var peak int64
	ticker := time.NewTicker(d.cfg.SampleInterval)
	defer ticker.Stop()

	sample := func() bool {
		statCtx, cancel := context.WithTimeout(ctx, d.cfg.SampleInterval)
		defer cancel()
		resp, err := d.client.ContainerStatsOneShot(statCtx, containerID)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		usage, ok := parseMemoryUsageBytes(resp.Body)
		if !ok {
			return true
		}
		kb := usage / 1024
		if kb > peak {
			peak = kb
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return peak
		case <-ticker.C:
			if !sample() {
				return peak
			}
		}
	}
}

func (d *Driver) writeStdin(ctx context.Context, containerID, stdin string) error {
	att, err := d.client.ContainerAttach(ctx, containerID, container.AttachOptions{Stdin: true, Stream: true})
	if err != nil {
		return err
	}
	defer att.Close()
	if _, err := io.WriteString(att.Conn, stdin); err != nil {
		return err
	}
	if cw, ok := interface{}(att.Conn).(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
	return nil
}

func (d *Driver) readLogs(ctx context.Context, containerID string) (string, string, error) {
	rc, err := d.client.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", err
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	_, err = stdcopy.StdCopy(
		&limitedWriter{w: &stdout, limit: d.cfg.MaxOutputBytes},
		&limitedWriter{w: &stderr, limit: d.cfg.MaxOutputBytes},
		rc,
	)
	return stdout.String(), stderr.String(), err
}

// Close releases the underlying Docker client.
func (d *Driver) Close() error {
	return d.client.Close()
}

// limitedWriter caps captured output at a fixed byte budget (spec §8
// boundary behavior: a program that writes 10 MiB to stdout is captured
// up to a memory-safe limit, not unboundedly).
type limitedWriter struct {
	w       io.Writer
	limit   int64
	written int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.written >= lw.limit {
		return len(p), nil
	}
	remaining := lw.limit - lw.written
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	if err != nil {
		return n, err
	}
	return len(p), nil
}
