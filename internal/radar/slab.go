package radar

// ForEachRun splits the hyperslab (origin, shape) of a row-major array with
// the declared lengths into the fewest runs that are contiguous in storage,
// calling fn with the inclusive first and last index of each run and its
// element count. Runs are visited in row-major order. Callers validate the
// window with CheckWindow first.
func ForEachRun(declared, origin, shape []int, fn func(first, last []int, n int) error) error {
	rank := len(declared)
	if rank == 0 {
		return fn(nil, nil, 1)
	}
	for _, l := range shape {
		if l == 0 {
			return nil
		}
	}

	// Dimensions after k are read whole, so each run spans them plus the
	// window of dimension k.
	k := rank - 1
	for k > 0 && origin[k] == 0 && shape[k] == declared[k] {
		k--
	}
	n := shape[k]
	for j := k + 1; j < rank; j++ {
		n *= declared[j]
	}

	first := make([]int, rank)
	last := make([]int, rank)
	idx := make([]int, k)
	for {
		for j := range k {
			first[j] = origin[j] + idx[j]
			last[j] = first[j]
		}
		first[k] = origin[k]
		last[k] = origin[k] + shape[k] - 1
		for j := k + 1; j < rank; j++ {
			first[j] = 0
			last[j] = declared[j] - 1
		}
		if err := fn(first, last, n); err != nil {
			return err
		}

		j := k - 1
		for ; j >= 0; j-- {
			idx[j]++
			if idx[j] < shape[j] {
				break
			}
			idx[j] = 0
		}
		if j < 0 {
			return nil
		}
	}
}
