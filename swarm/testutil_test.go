package swarm

import "testing"

// newTestPool returns a started kernel pool that is stopped when the test
// ends. Two workers are enough to exercise the parallel paths.
func newTestPool(t *testing.T) *kernelPool {
	t.Helper()
	pool := newKernelPool(2)
	pool.start()
	t.Cleanup(pool.stop)
	return pool
}

func approxEqual(a, b, tol float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}
