package main

import "fmt"

// Spinner renders a braille-dot progress indicator for long-running
// subcommands. Each call to Next returns the line to print, prefixed
// with a carriage return so successive frames overwrite in place.
type Spinner struct {
	frames []string
	index  int
}

func NewSpinner() *Spinner {
	return &Spinner{
		frames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
	}
}

func (s *Spinner) Next() string {
	frame := s.frames[s.index%len(s.frames)]
	s.index++
	return fmt.Sprintf("\r%s Working...", frame)
}
