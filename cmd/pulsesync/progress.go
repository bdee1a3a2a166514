package main

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter shows a countdown while a scan window is open.
//
// Usage:
//
//	p := NewCountdownProgressPrinter(w, "Scanning for sensors", 6*time.Second)
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use; Stop must be called to end its goroutine.
type ProgressPrinter struct {
	out      io.Writer
	prefix   string
	duration time.Duration

	mu     sync.Mutex
	phase  string
	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewCountdownProgressPrinter(out io.Writer, prefix string, duration time.Duration) *ProgressPrinter {
	return &ProgressPrinter{
		out:      out,
		prefix:   prefix,
		duration: duration,
		phase:    "Scanning",
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (p *ProgressPrinter) Start() {
	start := time.Now()
	ticker := time.NewTicker(progressUpdateInterval)

	go func() {
		defer close(p.done)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				fmt.Fprint(p.out, clearLineSequence)
				return
			case <-ticker.C:
				remaining := (p.duration - time.Since(start)).Round(time.Second)
				if remaining < 0 {
					remaining = 0
				}
				p.mu.Lock()
				phase := p.phase
				p.mu.Unlock()
				fmt.Fprintf(p.out, "%s%s (%s %s)", clearLineSequence, p.prefix, phase, remaining)
			}
		}
	}()
}

// Callback returns a scanner progress callback that updates the phase label.
func (p *ProgressPrinter) Callback() func(phase string) {
	return func(phase string) {
		p.mu.Lock()
		p.phase = phase
		p.mu.Unlock()
	}
}

func (p *ProgressPrinter) Stop() {
	p.once.Do(func() { close(p.stopCh) })
	<-p.done
}
