package main

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags.
var (
	version   = "dev"
	gitCommit = ""
	buildDate = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(GetVersionInfo())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// GetVersion returns the build version, falling back to module build info.
func GetVersion() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "dev"
}

// GetVersionInfo returns the version with commit and build date when known.
func GetVersionInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "callrelay version %s", GetVersion())
	if gitCommit != "" {
		fmt.Fprintf(&b, "\ncommit: %s", gitCommit)
	}
	if buildDate != "" {
		fmt.Fprintf(&b, "\nbuilt: %s", buildDate)
	}
	return b.String()
}
