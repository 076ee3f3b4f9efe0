package engine

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/mongofixture/internal/config"
	"github.com/syntrixbase/mongofixture/pkg/platform"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func writeExecutable(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
}

func TestFindBinary_Glob(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("pattern uses forward slashes")
	}
	root := t.TempDir()
	pattern, err := platform.Current()
	require.NoError(t, err)

	family, err := platform.FamilyOf(runtime.GOOS)
	require.NoError(t, err)
	dir := "mongodb-linux-x86_64-"
	if family == platform.MacOS {
		dir = "mongodb-macos-arm64-"
	}
	older := filepath.Join(root, "tools", dir+"6.0.5", "bin", "mongod")
	newer := filepath.Join(root, "tools", dir+"7.0.2", "bin", "mongod")
	writeExecutable(t, older, "")
	writeExecutable(t, newer, "")

	path, err := FindBinary(Options{PackageRoot: root, SearchPattern: pattern})
	require.NoError(t, err)
	assert.Equal(t, newer, path)
}

func TestFindBinary_GlobComparesVersionsNumerically(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("pattern uses forward slashes")
	}
	pattern, err := platform.Current()
	require.NoError(t, err)
	family, err := platform.FamilyOf(runtime.GOOS)
	require.NoError(t, err)
	dir := "mongodb-linux-x86_64-"
	if family == platform.MacOS {
		dir = "mongodb-macos-arm64-"
	}

	tests := []struct {
		name  string
		older string
		newer string
	}{
		{"two-digit major", "7.0.2", "10.0.1"},
		{"two-digit patch", "6.0.9", "6.0.10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			newer := filepath.Join(root, "tools", dir+tt.newer, "bin", "mongod")
			writeExecutable(t, filepath.Join(root, "tools", dir+tt.older, "bin", "mongod"), "")
			writeExecutable(t, newer, "")

			path, err := FindBinary(Options{PackageRoot: root, SearchPattern: pattern})
			require.NoError(t, err)
			assert.Equal(t, newer, path)
		})
	}
}

func TestNewestBundle(t *testing.T) {
	tests := []struct {
		name     string
		matches  []string
		expected string
	}{
		{"single", []string{"/p/tools/mongodb-linux-x86_64-7.0.2/bin/mongod"}, "/p/tools/mongodb-linux-x86_64-7.0.2/bin/mongod"},
		{"numeric", []string{
			"/p/tools/mongodb-linux-x86_64-10.0.1/bin/mongod",
			"/p/tools/mongodb-linux-x86_64-9.9.9/bin/mongod",
		}, "/p/tools/mongodb-linux-x86_64-10.0.1/bin/mongod"},
		{"unversioned loses", []string{
			"/p/tools/mongodb-linux-custom/bin/mongod",
			"/p/tools/mongodb-linux-x86_64-4.4.0/bin/mongod",
		}, "/p/tools/mongodb-linux-x86_64-4.4.0/bin/mongod"},
		{"tie falls back to path order", []string{
			"/p/tools/mongodb-linux-x86_64-ubuntu2204-7.0.2/bin/mongod",
			"/p/tools/mongodb-linux-aarch64-7.0.2/bin/mongod",
		}, "/p/tools/mongodb-linux-x86_64-ubuntu2204-7.0.2/bin/mongod"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, newestBundle(tt.matches))
		})
	}
}

func TestBundleVersion(t *testing.T) {
	v, ok := bundleVersion("/p/tools/mongodb-linux-x86_64-ubuntu2204-10.0.12/bin/mongod")
	require.True(t, ok)
	assert.Equal(t, "10.0.12", v.String())

	_, ok = bundleVersion("/p/tools/mongodb-linux-custom/bin/mongod")
	assert.False(t, ok)

	assert.Equal(t, 1, compareBundles("/t/mongodb-linux-x86_64-10.0.1/bin", "/t/mongodb-linux-x86_64-7.0.2/bin"))
	assert.Equal(t, -1, compareBundles("/t/mongodb-linux-x86_64-6.0.9/bin", "/t/mongodb-linux-x86_64-6.0.10/bin"))
}

func TestFindBinary_ExplicitPath(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "custom-mongod")
	writeExecutable(t, bin, "")

	path, err := FindBinary(Options{BinaryPath: bin, PackageRoot: "/nowhere", SearchPattern: "x"})
	require.NoError(t, err)
	assert.Equal(t, bin, path)
}

func TestFindBinary_ExplicitDirectory(t *testing.T) {
	dir := t.TempDir()

	path, err := FindBinary(Options{BinaryPath: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, executableName()), path)
}

func TestFindBinary_MissingExplicitPath(t *testing.T) {
	_, err := FindBinary(Options{BinaryPath: filepath.Join(t.TempDir(), "absent")})
	assert.ErrorIs(t, err, ErrLaunch)
}

func TestFindBinary_NotFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, err := FindBinary(Options{PackageRoot: t.TempDir(), SearchPattern: "tools/mongodb-linux*/bin"})
	assert.ErrorIs(t, err, ErrLaunch)
}

func TestFreePort(t *testing.T) {
	port, err := freePort()
	require.NoError(t, err)
	assert.Greater(t, port, 0)
}

func TestConnectionString(t *testing.T) {
	assert.Equal(t, "mongodb://127.0.0.1:27017/?directConnection=true", connectionString(27017))
}

func TestNewDataDir(t *testing.T) {
	parent := t.TempDir()

	first, err := newDataDir(parent)
	require.NoError(t, err)
	second, err := newDataDir(parent)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, parent, filepath.Dir(first))
	assert.True(t, strings.HasPrefix(filepath.Base(first), "mongofixture-"))
	_, err = uuid.Parse(strings.TrimPrefix(filepath.Base(first), "mongofixture-"))
	assert.NoError(t, err)
	assert.DirExists(t, first)
}

func TestNewDataDir_MissingParent(t *testing.T) {
	_, err := newDataDir(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestNewOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.PackageRoot = "/pkgs"
	cfg.Engine.ReplicaSetName = "fixture"
	cfg.Logging.Dir = "/logs"

	opts := NewOptions(cfg, "tools/mongodb-linux*/bin")
	assert.True(t, opts.ReplicaSet)
	assert.Equal(t, "/pkgs", opts.PackageRoot)
	assert.Equal(t, "tools/mongodb-linux*/bin", opts.SearchPattern)
	assert.Equal(t, "fixture", opts.ReplicaSetName)
	assert.Equal(t, "/logs", opts.LogDir)
	assert.Equal(t, cfg.Engine.StartupTimeout, opts.StartupTimeout)
}

func TestStart_ProcessExitsEarly(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as a fake mongod")
	}
	bin := filepath.Join(t.TempDir(), "mongod")
	writeExecutable(t, bin, "#!/bin/sh\necho 'fake mongod refusing to start'\nexit 1\n")
	dataParent := t.TempDir()
	logDir := t.TempDir()

	_, err := Start(context.Background(), Options{
		BinaryPath:     bin,
		ReplicaSet:     true,
		StartupTimeout: 10 * time.Second,
		DataDirParent:  dataParent,
		LogDir:         logDir,
		Rotation:       config.DefaultLoggingConfig().Rotation,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLaunch)

	// the temporary data directory is gone
	entries, err := os.ReadDir(dataParent)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// mongod output was captured
	logs, err := filepath.Glob(filepath.Join(logDir, "mongod-*.log"))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	content, err := os.ReadFile(logs[0])
	require.NoError(t, err)
	assert.Contains(t, string(content), "fake mongod refusing to start")
}

func TestStart_NotExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced")
	}
	bin := filepath.Join(t.TempDir(), "mongod")
	require.NoError(t, os.WriteFile(bin, []byte("not a program"), 0o644))
	dataParent := t.TempDir()

	_, err := Start(context.Background(), Options{BinaryPath: bin, DataDirParent: dataParent})
	assert.ErrorIs(t, err, ErrLaunch)

	entries, err := os.ReadDir(dataParent)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// realOptions returns launch options for an installed mongod, skipping the
// test when none can be found.
func realOptions(t *testing.T) Options {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping mongod integration test in short mode")
	}
	cfg, err := config.Load("")
	if err != nil {
		t.Skipf("no usable configuration: %v", err)
	}
	pattern, err := platform.Current()
	if err != nil {
		t.Skipf("unsupported platform: %v", err)
	}
	opts := NewOptions(cfg, pattern)
	if _, err := FindBinary(opts); err != nil {
		t.Skipf("mongod not available: %v", err)
	}
	opts.DataDirParent = t.TempDir()
	return opts
}

func TestStart_ReplicaSet(t *testing.T) {
	opts := realOptions(t)
	ctx := context.Background()

	e, err := Start(ctx, opts)
	require.NoError(t, err)
	dataDir := e.DataDir()
	assert.DirExists(t, dataDir)
	assert.True(t, e.Running())
	assert.Equal(t, connectionString(e.Port()), e.ConnectionString())

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(e.ConnectionString()))
	require.NoError(t, err)

	// transactions need a replica set
	coll := client.Database("engine_test").Collection("tx")
	session, err := client.StartSession()
	require.NoError(t, err)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		_, err := coll.InsertOne(sc, bson.M{"n": 1})
		return nil, err
	})
	session.EndSession(ctx)
	require.NoError(t, err)

	count, err := coll.CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	require.NoError(t, client.Disconnect(ctx))

	require.NoError(t, e.Stop(ctx))
	assert.False(t, e.Running())
	assert.NoDirExists(t, dataDir)

	// second stop is a no-op
	assert.NoError(t, e.Stop(ctx))
}
