package compute

// Backend runs data-parallel loops for the physics pass. fn receives a
// half-open range of slot indices and must only write to outputs it owns for
// that range.
type Backend interface {
	Name() string
	Workers() int
	ParallelFor(n int, fn func(start, end int))
}

// New returns a CPU backend with the given worker count. workers <= 0 uses
// one worker per CPU; workers == 1 returns the serial backend.
func New(workers int) Backend {
	if workers == 1 {
		return Serial{}
	}
	return NewCPUBackend(workers)
}

// Serial runs every loop on the calling goroutine.
type Serial struct{}

func (Serial) Name() string { return "serial" }
func (Serial) Workers() int { return 1 }

func (Serial) ParallelFor(n int, fn func(start, end int)) {
	if n > 0 {
		fn(0, n)
	}
}
