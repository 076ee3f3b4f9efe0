// Package platform maps operating system families to the glob used to find
// the mongod executable inside an engine package root.
//
// The launcher's stock search path nests one directory too deep when the
// package cache location is overridden (NUGET_PACKAGES-style layouts), so
// the patterns here are anchored directly below the package root.
package platform

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrEnvironment is returned for an operating system family with no known
// binary layout. There is no safe fallback pattern.
var ErrEnvironment = errors.New("unsupported environment")

// Family identifies a supported operating system family.
type Family int

const (
	Unknown Family = iota
	Linux
	MacOS
	Windows
)

func (f Family) String() string {
	switch f {
	case Linux:
		return "linux"
	case MacOS:
		return "macos"
	case Windows:
		return "windows"
	default:
		return "unknown"
	}
}

var patterns = map[Family]string{
	MacOS:   "tools/mongodb-macos*/bin",
	Linux:   "tools/mongodb-linux*/bin",
	Windows: `tools\mongodb-windows*\bin`,
}

// FamilyOf maps a GOOS value to its Family.
func FamilyOf(goos string) (Family, error) {
	switch goos {
	case "linux":
		return Linux, nil
	case "darwin":
		return MacOS, nil
	case "windows":
		return Windows, nil
	default:
		return Unknown, fmt.Errorf("%w: could not identify environment %q", ErrEnvironment, goos)
	}
}

// BinarySearchPattern returns the glob, relative to the package root, of the
// directory holding the mongod executable for the given family.
func BinarySearchPattern(f Family) (string, error) {
	pattern, ok := patterns[f]
	if !ok {
		return "", fmt.Errorf("%w: no binary search pattern for %s", ErrEnvironment, f)
	}
	return pattern, nil
}

// Current returns the binary search pattern for the running platform.
func Current() (string, error) {
	f, err := FamilyOf(runtime.GOOS)
	if err != nil {
		return "", err
	}
	return BinarySearchPattern(f)
}

// ExecutableName returns the mongod file name for the family.
func ExecutableName(f Family) string {
	if f == Windows {
		return "mongod.exe"
	}
	return "mongod"
}
