package tracking

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// ErrBadCommand is returned by Apply for a line it cannot parse.
const ErrBadCommand = errors.ConstError("bad tracking command")

// Apply parses one command line and reports it to t. Commands are
// "navigate <tab> <uri>", "close <tab>" and "idle". Blank lines and lines
// starting with '#' are ignored.
func Apply(t *Tracker, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}

	switch fields[0] {
	case "navigate":
		if len(fields) != 3 {
			return errors.Annotatef(ErrBadCommand, "%q", line)
		}
		tab, err := strconv.Atoi(fields[1])
		if err != nil {
			return errors.Annotatef(ErrBadCommand, "tab %q", fields[1])
		}
		t.Navigate(tab, fields[2])
	case "close":
		if len(fields) != 2 {
			return errors.Annotatef(ErrBadCommand, "%q", line)
		}
		tab, err := strconv.Atoi(fields[1])
		if err != nil {
			return errors.Annotatef(ErrBadCommand, "tab %q", fields[1])
		}
		t.Close(tab)
	case "idle":
		t.Idle()
	default:
		return errors.Annotatef(ErrBadCommand, "unknown command %q", fields[0])
	}
	return nil
}

// Feed applies every line of r to t until r is exhausted or ctx is done.
// Bad lines are passed to onError and skipped.
func Feed(ctx context.Context, r io.Reader, t *Tracker, onError func(error)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if err := Apply(t, scanner.Text()); err != nil && onError != nil {
			onError(err)
		}
	}
	return errors.Trace(scanner.Err())
}
