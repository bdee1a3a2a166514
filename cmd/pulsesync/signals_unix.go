//go:build unix

package main

import (
	"os"

	"golang.org/x/sys/unix"
)

func lifecycleSignals() (pause, resume os.Signal, ok bool) {
	return unix.SIGUSR1, unix.SIGUSR2, true
}
