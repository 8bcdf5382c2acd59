package seismic

// cartesian calls fn once for every combination of coordinates in the
// half-open boxes [begins[i], ends[i]), with the last axis varying fastest.
// The frame passed to fn is reused between calls and must be copied if
// retained. An empty range along any axis yields no calls; zero axes yield
// a single call with an empty frame.
func cartesian(begins, ends []int, fn func(frame []int)) {
	nd := len(begins)
	for i := 0; i < nd; i++ {
		if begins[i] >= ends[i] {
			return
		}
	}

	frame := make([]int, nd)
	copy(frame, begins)
	for {
		fn(frame)

		// carry from the innermost axis outwards
		i := nd - 1
		for ; i >= 0; i-- {
			frame[i]++
			if frame[i] < ends[i] {
				break
			}
			frame[i] = begins[i]
		}
		if i < 0 {
			return
		}
	}
}
