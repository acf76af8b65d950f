// Package buildinfo prints version data injected at link time, e.g.
//
//	go build -ldflags "-X github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/buildinfo.Version=v0.1.0"
package buildinfo

import (
	"fmt"
	"io"
)

var (
	Version = "N/A"
	Date    = "N/A"
	Commit  = "N/A"
)

func PrintBuildData(w io.Writer) {
	fmt.Fprintf(w, "Build version: %s\n", Version)
	fmt.Fprintf(w, "Build date: %s\n", Date)
	fmt.Fprintf(w, "Build commit: %s\n", Commit)
}
