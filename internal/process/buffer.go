package process

// ring is a bounded buffer of output lines; oldest lines are evicted first.
// Callers synchronize access (the owning Process holds its mutex).
type ring struct {
	lines []string
	next  int
	full  bool
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = DefaultOutputLines
	}
	return &ring{lines: make([]string, capacity)}
}

func (r *ring) append(line string) {
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// tail returns up to n of the most recent lines in append order.
// n <= 0 means all buffered lines.
func (r *ring) tail(n int) []string {
	size := r.next
	if r.full {
		size = len(r.lines)
	}
	if size == 0 {
		return nil
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]string, 0, n)
	start := r.next - n
	if start < 0 {
		start += len(r.lines)
	}
	for i := 0; i < n; i++ {
		out = append(out, r.lines[(start+i)%len(r.lines)])
	}
	return out
}
