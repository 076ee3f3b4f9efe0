package engine

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/blang/semver"
	"github.com/syntrixbase/mongofixture/pkg/platform"
)

// FindBinary resolves the mongod executable. An explicit BinaryPath wins;
// otherwise PackageRoot/SearchPattern is globbed and the match with the
// highest bundled version is used; finally PATH is consulted.
func FindBinary(opts Options) (string, error) {
	name := executableName()

	if opts.BinaryPath != "" {
		info, err := os.Stat(opts.BinaryPath)
		if err != nil {
			return "", fmt.Errorf("%w: mongod binary %s: %w", ErrLaunch, opts.BinaryPath, err)
		}
		if info.IsDir() {
			return filepath.Join(opts.BinaryPath, name), nil
		}
		return opts.BinaryPath, nil
	}

	if opts.PackageRoot != "" && opts.SearchPattern != "" {
		matches, err := filepath.Glob(filepath.Join(opts.PackageRoot, opts.SearchPattern, name))
		if err != nil {
			return "", fmt.Errorf("%w: bad search pattern %q: %w", ErrLaunch, opts.SearchPattern, err)
		}
		if len(matches) > 0 {
			return newestBundle(matches), nil
		}
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%w: %s not found under %s/%s or in PATH", ErrLaunch, name, opts.PackageRoot, opts.SearchPattern)
}

func executableName() string {
	f, err := platform.FamilyOf(runtime.GOOS)
	if err != nil {
		return "mongod"
	}
	return platform.ExecutableName(f)
}

// newestBundle picks the match whose mongodb-<os>-<arch>-X.Y.Z directory
// carries the highest version. Unversioned matches rank lowest; path order
// breaks ties.
func newestBundle(matches []string) string {
	return slices.MaxFunc(matches, func(a, b string) int {
		if c := compareBundles(a, b); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
}

func compareBundles(a, b string) int {
	va, okA := bundleVersion(a)
	vb, okB := bundleVersion(b)
	switch {
	case okA && okB:
		return va.Compare(vb)
	case okA:
		return 1
	case okB:
		return -1
	default:
		return 0
	}
}

// bundleVersion parses the segment after the last '-' of the first
// mongodb-* path element that carries one.
func bundleVersion(path string) (semver.Version, bool) {
	for _, elem := range strings.Split(filepath.ToSlash(path), "/") {
		if !strings.HasPrefix(elem, "mongodb-") {
			continue
		}
		v, err := semver.ParseTolerant(elem[strings.LastIndex(elem, "-")+1:])
		if err == nil {
			return v, true
		}
	}
	return semver.Version{}, false
}
