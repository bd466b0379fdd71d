package cli_test

import (
	"errors"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frobware/go-opstart/cmd/opstart/cli"
)

// failingWriter is an io.Writer that succeeds for the first N bytes, then
// fails with a chosen error. It can also simulate short writes with nil
// error.
type failingWriter struct {
	// budget is how many bytes may be successfully written before we fail.
	budget int

	// failErr is returned once the budget is exhausted.
	failErr error

	// shortWriteEvery, if >0, simulates a short write with nil error
	// every Nth call.
	shortWriteEvery int

	writes int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++

	if w.shortWriteEvery > 0 && (w.writes%w.shortWriteEvery) == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 1, nil
	}

	if w.budget <= 0 {
		return 0, w.failErr
	}
	if len(p) <= w.budget {
		w.budget -= len(p)
		return len(p), nil
	}

	n := w.budget
	w.budget = 0
	return n, w.failErr
}

var _ io.Writer = (*failingWriter)(nil)

func TestCLIWriteOut_PropagatesENOSPC(t *testing.T) {
	c := &cli.CLI{Out: &failingWriter{budget: 0, failErr: syscall.ENOSPC}}
	err := c.WriteOut([]byte("x"))
	require.True(t, errors.Is(err, syscall.ENOSPC))
}

func TestCLIWriteOut_TreatsShortWriteAsError(t *testing.T) {
	c := &cli.CLI{Out: &failingWriter{budget: 10, failErr: syscall.ENOSPC, shortWriteEvery: 1}}
	err := c.WriteOut([]byte("hello"))
	require.ErrorIs(t, err, io.ErrShortWrite)
}

func TestCLIWriteOut_PartialThenFailReturnsENOSPC(t *testing.T) {
	c := &cli.CLI{Out: &failingWriter{budget: 3, failErr: syscall.ENOSPC}}
	err := c.WriteOut([]byte("hello"))
	require.True(t, errors.Is(err, syscall.ENOSPC))
}

func TestCLIPrintOut_PropagatesError(t *testing.T) {
	c := &cli.CLI{Out: &failingWriter{budget: 0, failErr: syscall.EPIPE}}
	err := c.PrintOut("Profiler is not running.\n")
	require.True(t, errors.Is(err, syscall.EPIPE))
}

func TestCLIPrintOutf_PropagatesError(t *testing.T) {
	c := &cli.CLI{Out: &failingWriter{budget: 0, failErr: syscall.EPIPE}}
	err := c.PrintOutf("Profiler running %s\n", "1m2s")
	require.True(t, errors.Is(err, syscall.EPIPE))
}
