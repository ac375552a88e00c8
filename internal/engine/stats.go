package engine

// Stats is a point-in-time snapshot of engine activity, in the spirit
// of the reference cache's own Stats struct: a small, lock-free value
// type returned by copy so callers can't corrupt the engine's live
// counters. It carries no behavior of its own; the engine updates the
// live counters under the same lock that protects everything else and
// hands back a copy from Stats().
type Stats struct {
	Hits            uint64
	Misses          uint64
	Puts            uint64
	IdempotentPuts  uint64
	Evictions       uint64
	CapacityErrors  uint64
}
