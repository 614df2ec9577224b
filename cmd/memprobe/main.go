package main

import (
	"os"

	"github.com/NH5pml30/virtual-machines/cmd/memprobe/cmds"
	"github.com/NH5pml30/virtual-machines/pkg/logflags"
)

func main() {
	err := cmds.New().Execute()
	logflags.Close()
	if err != nil {
		os.Exit(1)
	}
}
