package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Spinner animates a line on stderr while a long operation is running.
type Spinner struct {
	frames  []string
	message string
	writer  io.Writer

	stop   sync.Once
	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewSpinner() *Spinner {
	return &Spinner{
		frames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		writer: os.Stderr,
		done:   make(chan struct{}),
	}
}

func (s *Spinner) SetMessage(msg string) {
	msg = strings.TrimSpace(msg)
	s.message = strings.TrimRight(msg, ".")
}

// Run animates the spinner until fn returns.
func (s *Spinner) Run(fn func() error) error {
	s.start()
	defer s.Stop()
	return fn()
}

func (s *Spinner) Stop() {
	s.stop.Do(func() {
		close(s.done)
		s.wg.Wait()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		io.WriteString(s.writer, "\x1b[0G\x1b[2K\x1b[0G")
	})
}

func (s *Spinner) start() {
	s.ticker = time.NewTicker(time.Millisecond * 90)
	s.wg.Add(1)
	go s.run()
}

func (s *Spinner) run() {
	defer s.wg.Done()
	for i := 0; ; i++ {
		select {
		case <-s.ticker.C:
			f := s.frames[i%len(s.frames)]
			if s.message == "" {
				fmt.Fprintf(s.writer, "\r%s", f)
			} else {
				fmt.Fprintf(s.writer, "\r%s %s...", f, s.message)
			}
		case <-s.done:
			return
		}
	}
}
