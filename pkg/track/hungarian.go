package track

import "math"

// Cost of a pair that may never be matched
var hungarianForbidden = float32(math.Inf(1))

func isForbidden(c float32) bool {
	return math.IsInf(float64(c), 1) || math.IsNaN(float64(c))
}

// hungarianAssign solves the rectangular assignment problem for an n×m cost
// matrix with the Kuhn–Munkres algorithm (Jonker-Volgenant potentials), in O(n²m).
// It returns assignments[i] = column assigned to row i, or -1 if unassigned.
// Forbidden pairs (+Inf) are never assigned. The result matches as many rows as
// possible, and among those, has the lowest total cost.
func hungarianAssign(cost [][]float32) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	result := make([]int, n)
	for i := range result {
		result[i] = -1
	}
	if m == 0 {
		return result
	}

	// Forbidden pairs cost more than every allowed pair put together, so the solver
	// only takes one when it has no alternative. Those are dropped afterwards.
	big := 1.0
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			if !isForbidden(cost[i][j]) {
				big += math.Abs(float64(cost[i][j]))
			}
		}
	}

	// The solver needs rows <= columns, so transpose if necessary
	transposed := n > m
	rows, cols := n, m
	if transposed {
		rows, cols = m, n
	}
	c := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		c[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			v := cost[i][j]
			if transposed {
				v = cost[j][i]
			}
			if isForbidden(v) {
				c[i][j] = big
			} else {
				c[i][j] = float64(v)
			}
		}
	}

	for i, j := range solveAssignment(c, rows, cols) {
		ci, cj := i, j
		if transposed {
			ci, cj = j, i
		}
		if !isForbidden(cost[ci][cj]) {
			result[ci] = cj
		}
	}
	return result
}

// solveAssignment assigns every row of c to a distinct column, minimizing the total.
// Requires rows <= cols. Returns the column of each row.
func solveAssignment(c [][]float64, rows, cols int) []int {
	// 1-indexed arrays, with column 0 as a virtual column
	inf := math.Inf(1)
	u := make([]float64, rows+1) // Row potentials
	v := make([]float64, cols+1) // Column potentials
	p := make([]int, cols+1)     // p[j] = row assigned to column j
	way := make([]int, cols+1)   // way[j] = previous column in augmenting path
	minv := make([]float64, cols+1)
	used := make([]bool, cols+1)

	for i := 1; i <= rows; i++ {
		p[0] = i
		j0 := 0
		for j := 0; j <= cols; j++ {
			minv[j] = inf
			used[j] = false
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := 0
			for j := 1; j <= cols; j++ {
				if used[j] {
					continue
				}
				cur := c[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= cols; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		// Augment along the path
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	assign := make([]int, rows)
	for j := 1; j <= cols; j++ {
		if p[j] > 0 {
			assign[p[j]-1] = j - 1
		}
	}
	return assign
}
