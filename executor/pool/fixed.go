package pool

// fixed is a bounded pool with a best-effort overflow buffer, adapted in
// structure from the teacher's pool.Fixed: three channels (available, all,
// buf) give O(1) Get/Put without a lock, at the cost of allowing a
// transient extra allocation under heavy contention.
type fixed[T any] struct {
	available chan T
	all       chan T
	buf       chan T
	newFn     func() T
}

// NewFixed constructs a Pool[T] that caches up to capacity values, created
// lazily via newFn.
func NewFixed[T any](capacity uint, newFn func() T) Pool[T] {
	return &fixed[T]{
		available: make(chan T, capacity),
		all:       make(chan T, capacity),
		buf:       make(chan T, 1024),
		newFn:     newFn,
	}
}

func (p *fixed[T]) Get() T {
	select {
	case el := <-p.available:
		return el

	case el := <-p.buf:
		return el

	default:
		var el T

		if len(p.all) < cap(p.all) {
			el = p.newFn()
		} else {
			el = <-p.all
		}

		select {
		case p.all <- el:
		case p.buf <- el:
		default:
		}
		return el
	}
}

func (p *fixed[T]) Put(el T) {
	select {
	case p.available <- el:
	case p.all <- el:
	case p.buf <- el:
	default:
	}
}
