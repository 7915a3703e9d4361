package lokadcloud

import "pkt.systems/pslog"

// Observer is the optional logging capability a Provider accepts. The core
// never constructs or owns a concrete logger itself; it only accepts one. A
// logger that is itself backed by this library (e.g. a log sink that writes
// through a queue) must be constructed with a null Observer, never the
// logger's own instance, to avoid self-logging recursion.
type Observer = pslog.Logger

// NoopObserver discards everything logged through it. It is the default
// Observer when a Provider is constructed without one.
func NoopObserver() Observer {
	return pslog.NoopLogger()
}
