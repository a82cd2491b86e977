package zfs

import (
	"context"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/ChaoticEnigma/zfs3backup/internal/config"
	"github.com/ChaoticEnigma/zfs3backup/internal/domain"
	"github.com/ChaoticEnigma/zfs3backup/pkg/errors"
	"github.com/ChaoticEnigma/zfs3backup/pkg/logger"
)

// Runner executes a command and captures its combined output.
// Injectable so tests never exec zfs.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Manager enumerates the snapshots of one filesystem and opens their
// send streams. Implements repository.SnapshotRepository.
type Manager struct {
	filesystem     string
	snapshotPrefix string
	compressor     string
	runner         Runner
	log            logger.Logger
}

func NewManager(cfg *config.Config, log logger.Logger) *Manager {
	return &Manager{
		filesystem:     cfg.Filesystem,
		snapshotPrefix: cfg.SnapshotPrefix,
		compressor:     cfg.Compressor,
		runner:         execRunner{},
		log:            log,
	}
}

// NewManagerWithRunner is used by tests to substitute the zfs binary.
func NewManagerWithRunner(cfg *config.Config, runner Runner, log logger.Logger) *Manager {
	m := NewManager(cfg, log)
	m.runner = runner
	return m
}

// List returns the filesystem's snapshots matching the configured
// prefix, oldest first, with parent pointers chained in list order.
func (m *Manager) List(ctx context.Context) ([]*domain.SnapshotRef, error) {
	out, err := m.runner.Output(ctx, "zfs",
		"list", "-Ht", "snap", "-o", "name,used,refer,mountpoint,written")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "unable to list local snapshots")
	}
	return m.parseSnapshots(out), nil
}

func (m *Manager) parseSnapshots(out []byte) []*domain.SnapshotRef {
	var refs []*domain.SnapshotRef
	var parent *domain.SnapshotRef
	for _, line := range strings.Split(string(out), "\n") {
		if len(line) == 0 {
			continue
		}
		fields := strings.Split(line, "\t")
		name := fields[0]
		fs, snap, found := strings.Cut(name, "@")
		if !found || fs != m.filesystem {
			continue
		}
		if !strings.HasPrefix(snap, m.snapshotPrefix) {
			continue
		}
		ref := &domain.SnapshotRef{
			Filesystem: fs,
			Name:       snap,
			Parent:     parent,
			Order:      len(refs),
		}
		refs = append(refs, ref)
		parent = ref
	}
	return refs
}

func (m *Manager) Latest(ctx context.Context) (*domain.SnapshotRef, error) {
	refs, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, errors.Newf(errors.ErrCodeNotFound,
			"nothing to backup for filesystem %q, is SNAPSHOT_PREFIX=%q correct?",
			m.filesystem, m.snapshotPrefix)
	}
	return refs[len(refs)-1], nil
}

func (m *Manager) Get(ctx context.Context, fullName string) (*domain.SnapshotRef, error) {
	refs, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if ref.FullName() == fullName {
			return ref, nil
		}
	}
	return nil, errors.Newf(errors.ErrCodeNotFound, "no such snapshot %q", fullName)
}

// EstimateSize parses the stream size out of a dry-run send. The last
// line of `zfs send -nvP` is "size <bytes>".
func (m *Manager) EstimateSize(ctx context.Context, ref, parent *domain.SnapshotRef) (int64, error) {
	args := []string{"send", "-R", "-nvP"}
	if parent != nil {
		args = append(args, "-i", parent.FullName())
	}
	args = append(args, ref.FullName())

	out, err := m.runner.Output(ctx, "zfs", args...)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrCodeUnavailable, "zfs send dry-run failed for %s", ref)
	}
	return parseEstimatedSize(out)
}

func parseEstimatedSize(out []byte) (int64, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	fields := strings.Fields(last)
	if len(fields) < 2 {
		return 0, errors.Newf(errors.ErrCodeInternal, "failed to parse send estimate from %q", last)
	}
	size, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrCodeInternal, "failed to parse send estimate from %q", last)
	}
	return size, nil
}

// OpenStream starts `zfs send [-i parent]` piped through the
// configured compressor and returns the compressed stream. Closing
// the returned reader reaps both processes; closing before EOF kills
// them.
func (m *Manager) OpenStream(ctx context.Context, ref, parent *domain.SnapshotRef) (io.ReadCloser, error) {
	compressArgv, err := CompressCommand(m.compressor)
	if err != nil {
		return nil, err
	}

	sendArgs := []string{"send", "-R"}
	if parent != nil {
		sendArgs = append(sendArgs, "-i", parent.FullName())
	}
	sendArgs = append(sendArgs, ref.FullName())
	send := exec.CommandContext(ctx, "zfs", sendArgs...)

	cmds := []*exec.Cmd{send}
	tail := send

	if compressArgv != nil {
		compress := exec.CommandContext(ctx, compressArgv[0], compressArgv[1:]...)
		stdout, err := send.StdoutPipe()
		if err != nil {
			return nil, err
		}
		compress.Stdin = stdout
		cmds = append(cmds, compress)
		tail = compress
	}

	out, err := tail.StdoutPipe()
	if err != nil {
		return nil, err
	}

	for _, cmd := range cmds {
		if err := cmd.Start(); err != nil {
			for _, started := range cmds {
				if started.Process != nil {
					started.Process.Kill()
					started.Wait()
				}
			}
			return nil, errors.Wrapf(err, errors.ErrCodeUnavailable, "failed to start %s", cmd.Path)
		}
	}

	m.log.Debug("Opened snapshot stream",
		"snapshot", ref.FullName(), "incremental", parent != nil, "compressor", m.compressor)

	return &pipelineReader{out: out, cmds: cmds}, nil
}

// pipelineReader reads the tail of a process pipeline and reaps every
// process on Close.
type pipelineReader struct {
	out  io.ReadCloser
	cmds []*exec.Cmd
	eof  bool
	once sync.Once
	err  error
}

func (p *pipelineReader) Read(buf []byte) (int, error) {
	n, err := p.out.Read(buf)
	if err == io.EOF {
		p.eof = true
	}
	return n, err
}

func (p *pipelineReader) Close() error {
	p.once.Do(func() {
		if !p.eof {
			for _, cmd := range p.cmds {
				if cmd.Process != nil {
					cmd.Process.Kill()
				}
			}
		}
		p.out.Close()
		for _, cmd := range p.cmds {
			if err := cmd.Wait(); err != nil && p.eof && p.err == nil {
				p.err = errors.Wrapf(err, errors.ErrCodeStreamRead, "%s exited abnormally", cmd.Path)
			}
		}
	})
	return p.err
}
