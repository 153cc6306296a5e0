// Command jemnorm validates and flattens JEM slice records.
package main

import (
	"fmt"
	"os"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "jemnorm:", err)
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}
