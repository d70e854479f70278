package disparity

// filterSpeckles invalidates 4-connected regions of valid pixels smaller
// than minRegion, where neighbours belong to the same region when their
// disparities differ by at most maxDiff sixteenths of a pixel. It returns
// the number of pixels invalidated.
func filterSpeckles(m *Map, minRegion, maxDiff int) int {
	w, h := m.Width, m.Height
	labels := make([]int32, w*h)
	floor := float32(m.MinDisparity)
	inv := m.Invalid()
	limit := float32(maxDiff) / SubpixelScale

	var stack []int
	var region []int
	next := int32(0)
	removed := 0

	for start := range m.Data {
		if labels[start] != 0 || m.Data[start] < floor {
			continue
		}
		next++
		labels[start] = next
		stack = append(stack[:0], start)
		region = region[:0]

		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			region = append(region, i)

			d := m.Data[i]
			x, y := i%w, i/w
			visit := func(j int) {
				if labels[j] != 0 {
					return
				}
				nd := m.Data[j]
				if nd < floor {
					return
				}
				diff := nd - d
				if diff < 0 {
					diff = -diff
				}
				if diff <= limit {
					labels[j] = next
					stack = append(stack, j)
				}
			}
			if x > 0 {
				visit(i - 1)
			}
			if x < w-1 {
				visit(i + 1)
			}
			if y > 0 {
				visit(i - w)
			}
			if y < h-1 {
				visit(i + w)
			}
		}

		if len(region) < minRegion {
			for _, i := range region {
				m.Data[i] = inv
			}
			removed += len(region)
		}
	}
	return removed
}
