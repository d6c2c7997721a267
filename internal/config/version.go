package config

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// SchemaVersion is the major.minor version a config file declares.
type SchemaVersion struct {
	Major int
	Minor int
}

// currentMajor is the only major version this build can decode. Minor bumps
// only add optional attributes, which an older daemon rejects on decode.
const currentMajor = 1

// ParseVersion parses "X.Y". An empty string means a file written before
// schema_version existed and reads as 1.0.
func ParseVersion(s string) (SchemaVersion, error) {
	if s == "" {
		return SchemaVersion{Major: 1}, nil
	}
	majorText, minorText, ok := strings.Cut(s, ".")
	if !ok || strings.Contains(minorText, ".") {
		return SchemaVersion{}, fmt.Errorf("%q is not of the form X.Y", s)
	}
	major, err := strconv.Atoi(majorText)
	if err != nil || major < 0 {
		return SchemaVersion{}, fmt.Errorf("%q has a bad major number", s)
	}
	minor, err := strconv.Atoi(minorText)
	if err != nil || minor < 0 {
		return SchemaVersion{}, fmt.Errorf("%q has a bad minor number", s)
	}
	return SchemaVersion{Major: major, Minor: minor}, nil
}

func (v SchemaVersion) String() string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// Compare orders versions like cmp.Compare.
func (v SchemaVersion) Compare(other SchemaVersion) int {
	if c := cmp.Compare(v.Major, other.Major); c != 0 {
		return c
	}
	return cmp.Compare(v.Minor, other.Minor)
}

// IsSupportedVersion reports whether the loader can read files of version v.
func IsSupportedVersion(v SchemaVersion) bool {
	return v.Major == currentMajor
}
