package main

import (
	"fmt"
	"os"

	"github.com/crowdlate/crowdlate/cli/cmd"
	"github.com/crowdlate/crowdlate/faults"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeForError(err))
	}
}

func exitCodeForError(err error) int {
	switch {
	case faults.IsCategory(err, faults.ConfigurationError):
		return 2
	case faults.IsCategory(err, faults.NotAllowedError):
		return 3
	case faults.IsCategory(err, faults.NotFoundError):
		return 4
	case faults.IsCategory(err, faults.TransientError):
		return 5
	default:
		return 1
	}
}
