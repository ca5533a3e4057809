package version

import (
	"fmt"
	"io"
	"os"
	"runtime"
)

const (
	Version = "1.0"
)

func HasVersionArg() bool {
	if len(os.Args) > 1 {
		arg := os.Args[1]
		return arg == "--version" || arg == "-version" || arg == "-v" || arg == "--v" || arg == "version"
	}
	return false
}

// ShowVersion prints the version line to stdout.
func ShowVersion() {
	WriteVersion(os.Stdout)
}

// WriteVersion prints the version line to w.
func WriteVersion(w io.Writer) {
	_, _ = fmt.Fprintf(w, "firedl v%s (%s/%s)\n", Version, runtime.GOOS, runtime.GOARCH)
}
