// Package buildinfo holds values stamped in at link time with -ldflags "-X".
package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
}

func String() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s, built %s)", Version, Commit, BuiltAt)
}
