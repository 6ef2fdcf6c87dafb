package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gookit/color"
	"golang.org/x/term"
)

type destinationStdout struct {
	out      io.Writer
	useColor bool

	buf bytes.Buffer
}

func newDestinationStdout() destination {
	return &destinationStdout{
		out:      os.Stdout,
		useColor: term.IsTerminal(int(os.Stdout.Fd())),
	}
}

func (d *destinationStdout) log(t time.Time, level Level, format string, args ...any) {
	d.buf.Reset()
	writeTime(&d.buf, t, d.useColor)
	writeLevel(&d.buf, level, d.useColor)
	fmt.Fprintf(&d.buf, format, args...)
	d.buf.WriteByte('\n')
	d.out.Write(d.buf.Bytes()) //nolint:errcheck
}

func (d *destinationStdout) close() {
}

func writeTime(buf *bytes.Buffer, t time.Time, useColor bool) {
	s := t.Format("2006/01/02 15:04:05 ")
	if useColor {
		s = color.RenderString(color.Gray.Code(), s)
	}
	buf.WriteString(s)
}

func writeLevel(buf *bytes.Buffer, level Level, useColor bool) {
	if !useColor {
		buf.WriteString(level.String() + " ")
		return
	}

	switch level {
	case Debug:
		buf.WriteString(color.RenderString(color.Debug.Code(), level.String()))
	case Info:
		buf.WriteString(color.RenderString(color.Green.Code(), level.String()))
	case Warn:
		buf.WriteString(color.RenderString(color.Warn.Code(), level.String()))
	case Error:
		buf.WriteString(color.RenderString(color.Error.Code(), level.String()))
	}
	buf.WriteByte(' ')
}
