// Package engine starts and stops ephemeral mongod processes for tests.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/syntrixbase/mongofixture/internal/logging"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrLaunch is returned when mongod cannot be found, started, or brought
// to a usable state. It is not retried.
var ErrLaunch = errors.New("engine launch failed")

const pollInterval = 100 * time.Millisecond

// Instance is a running engine as seen by a fixture.
type Instance interface {
	ConnectionString() string
	Stop(ctx context.Context) error
}

// Launcher starts engines.
type Launcher interface {
	Launch(ctx context.Context, opts Options) (Instance, error)
}

// ProcessLauncher launches a local mongod subprocess.
type ProcessLauncher struct{}

func (ProcessLauncher) Launch(ctx context.Context, opts Options) (Instance, error) {
	return Start(ctx, opts)
}

// Engine is a running mongod process with its own port and data directory.
type Engine struct {
	cmd         *exec.Cmd
	port        int
	dataDir     string
	connString  string
	logFile     io.Closer
	logger      *slog.Logger
	stopTimeout time.Duration

	exited  chan struct{}
	waitErr error

	stopOnce sync.Once
	stopErr  error
}

// Start launches mongod and blocks until it accepts writes. On any failure
// after the process has started, the process is stopped and its data
// directory removed before returning.
func Start(ctx context.Context, opts Options) (*Engine, error) {
	opts.applyDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	binary, err := FindBinary(opts)
	if err != nil {
		return nil, err
	}

	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("%w: allocate port: %w", ErrLaunch, err)
	}

	dataDir, err := newDataDir(opts.DataDirParent)
	if err != nil {
		return nil, fmt.Errorf("%w: create data directory: %w", ErrLaunch, err)
	}

	args := []string{
		"--port", strconv.Itoa(port),
		"--bind_ip", "127.0.0.1",
		"--dbpath", dataDir,
	}
	if opts.ReplicaSet {
		args = append(args, "--replSet", opts.ReplicaSetName)
	}
	args = append(args, opts.ExtraArgs...)

	cmd := exec.Command(binary, args...) //nolint:gosec // binary comes from configuration
	var logFile io.WriteCloser
	if opts.LogDir != "" {
		w, err := logging.NewRotatingWriter(opts.LogDir, fmt.Sprintf("mongod-%d.log", port), opts.Rotation)
		if err != nil {
			_ = os.RemoveAll(dataDir)
			return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
		}
		logFile = w
		cmd.Stdout = w
		cmd.Stderr = w
	}

	if err := cmd.Start(); err != nil {
		_ = os.RemoveAll(dataDir)
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, fmt.Errorf("%w: start %s: %w", ErrLaunch, binary, err)
	}

	e := &Engine{
		cmd:         cmd,
		port:        port,
		dataDir:     dataDir,
		connString:  connectionString(port),
		logFile:     logFile,
		logger:      logger,
		stopTimeout: opts.StopTimeout,
		exited:      make(chan struct{}),
	}
	go func() {
		e.waitErr = cmd.Wait()
		close(e.exited)
	}()

	logger.Info("mongod started", "binary", binary, "pid", cmd.Process.Pid, "port", port, "replica_set", opts.ReplicaSet)

	if err := e.waitReady(ctx, opts); err != nil {
		_ = e.Stop(context.Background())
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	return e, nil
}

// ConnectionString returns the URI clients use to reach the engine.
func (e *Engine) ConnectionString() string { return e.connString }

// Port returns the TCP port mongod listens on.
func (e *Engine) Port() int { return e.port }

// DataDir returns the temporary --dbpath directory.
func (e *Engine) DataDir() string { return e.dataDir }

// PID returns the mongod process id.
func (e *Engine) PID() int { return e.cmd.Process.Pid }

// Running reports whether the process has not exited.
func (e *Engine) Running() bool {
	select {
	case <-e.exited:
		return false
	default:
		return true
	}
}

// Stop shuts mongod down, waits for it to exit, and removes its data
// directory. Calls after the first return the first result.
func (e *Engine) Stop(ctx context.Context) error {
	e.stopOnce.Do(func() {
		e.stopErr = e.stop(ctx)
	})
	return e.stopErr
}

func (e *Engine) stop(ctx context.Context) error {
	var errs []error

	if e.Running() {
		if err := e.signal(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, fmt.Errorf("signal mongod: %w", err))
		}

		timer := time.NewTimer(e.stopTimeout)
		defer timer.Stop()
		select {
		case <-e.exited:
		case <-timer.C:
			e.logger.Error("mongod did not exit in time, killing", "pid", e.PID(), "timeout", e.stopTimeout)
			_ = e.cmd.Process.Kill()
			<-e.exited
		case <-ctx.Done():
			_ = e.cmd.Process.Kill()
			<-e.exited
		}
	}

	if err := os.RemoveAll(e.dataDir); err != nil {
		errs = append(errs, fmt.Errorf("remove data directory: %w", err))
	}
	if e.logFile != nil {
		if err := e.logFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close mongod log: %w", err))
		}
	}

	e.logger.Info("mongod stopped", "pid", e.PID(), "port", e.Port())
	return errors.Join(errs...)
}

func (e *Engine) signal() error {
	if runtime.GOOS == "windows" {
		return e.cmd.Process.Kill()
	}
	return e.cmd.Process.Signal(os.Interrupt)
}

func (e *Engine) waitReady(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithTimeout(ctx, opts.StartupTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(e.connString).
		SetServerSelectionTimeout(time.Second))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	if err := e.poll(ctx, func(ctx context.Context) (bool, error) {
		return client.Ping(ctx, nil) == nil, nil
	}); err != nil {
		return fmt.Errorf("waiting for mongod: %w", err)
	}

	if !opts.ReplicaSet {
		return nil
	}

	admin := client.Database("admin")
	initiate := bson.D{{Key: "replSetInitiate", Value: bson.D{
		{Key: "_id", Value: opts.ReplicaSetName},
		{Key: "members", Value: bson.A{
			bson.D{{Key: "_id", Value: 0}, {Key: "host", Value: fmt.Sprintf("127.0.0.1:%d", e.port)}},
		}},
	}}}
	if err := admin.RunCommand(ctx, initiate).Err(); err != nil && !alreadyInitialized(err) {
		return fmt.Errorf("replSetInitiate: %w", err)
	}

	if err := e.poll(ctx, func(ctx context.Context) (bool, error) {
		var hello struct {
			IsWritablePrimary bool `bson:"isWritablePrimary"`
		}
		if err := admin.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
			return false, nil
		}
		return hello.IsWritablePrimary, nil
	}); err != nil {
		return fmt.Errorf("waiting for primary: %w", err)
	}

	e.logger.Info("replica set ready", "name", opts.ReplicaSetName, "port", e.port)
	return nil
}

// poll calls check until it reports done, the process exits, or ctx ends.
func (e *Engine) poll(ctx context.Context, check func(context.Context) (bool, error)) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		attemptCtx, cancel := context.WithTimeout(ctx, time.Second)
		done, err := check(attemptCtx)
		cancel()
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-e.exited:
			return fmt.Errorf("mongod exited: %v", e.waitErr)
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func alreadyInitialized(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == 23 // AlreadyInitialized
	}
	return false
}

// connectionString addresses the single member directly. The driver then
// skips replica set discovery, which would otherwise try the member's
// advertised host name instead of 127.0.0.1.
func connectionString(port int) string {
	return fmt.Sprintf("mongodb://127.0.0.1:%d/?directConnection=true", port)
}

// newDataDir creates parent/mongofixture-<uuid>. An empty parent means the
// system temp directory.
func newDataDir(parent string) (string, error) {
	if parent == "" {
		parent = os.TempDir()
	}
	dir := filepath.Join(parent, "mongofixture-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
