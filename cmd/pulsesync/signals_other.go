//go:build !unix

package main

import "os"

// No user signals here; pause and resume are unavailable.
func lifecycleSignals() (pause, resume os.Signal, ok bool) {
	return nil, nil, false
}
