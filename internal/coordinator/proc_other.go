//go:build !unix

package coordinator

// defaultProber on platforms without the zero-signal probe reports
// every PID alive. Recovery then flags stale agents unresponsive
// instead of reaping them, which errs on the safe side.
type defaultProber struct{}

func (defaultProber) Alive(pid int) bool { return pid > 0 }
