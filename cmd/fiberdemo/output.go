package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/stealthrocket/fiber"
)

var stateColors = map[fiber.State]*color.Color{
	fiber.StateIdle:     color.New(color.FgWhite),
	fiber.StateRunning:  color.New(color.FgGreen, color.Bold),
	fiber.StateWaiting:  color.New(color.FgYellow),
	fiber.StateFinished: color.New(color.FgBlue),
}

var (
	nameColor = color.New(color.FgCyan)
	noteColor = color.New(color.Faint)
)

type printer struct {
	w io.Writer
}

func newPrinter(w io.Writer) *printer { return &printer{w: w} }

func (p *printer) state(elapsed time.Duration, name string, st fiber.State) {
	c, ok := stateColors[st]
	if !ok {
		c = stateColors[fiber.StateIdle]
	}
	fmt.Fprintf(p.w, "%8s  %-12s %s\n",
		elapsed.Round(time.Millisecond),
		nameColor.Sprint(name),
		c.Sprint(st))
}

func (p *printer) note(format string, args ...any) {
	fmt.Fprintln(p.w, noteColor.Sprintf(format, args...))
}
