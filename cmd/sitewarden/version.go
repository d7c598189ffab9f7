// cmd/sitewarden/version.go
package main

import (
    "fmt"
    "runtime"

    "github.com/spf13/cobra"
    "sitewarden/internal/web"
)

var versionCmd = &cobra.Command{
    Use:   "version",
    Short: "Print version information",
    Run: func(cmd *cobra.Command, args []string) {
        verbose, _ := cmd.Flags().GetBool("verbose")

        if verbose {
            fmt.Printf(`Sitewarden Version Information:
  Version:    %s
  Git Commit: %s
  Build Time: %s
  Go Version: %s
  OS/Arch:    %s/%s
`, web.Version, web.GitCommit, web.BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
        } else {
            fmt.Printf("sitewarden version %s\n", web.Version)
        }
    },
}

func init() {
    versionCmd.Flags().BoolP("verbose", "v", false, "Show detailed version information")
}
