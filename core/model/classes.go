package model

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// ExtractClasses returns the sorted unique integer labels of the column vector y.
func ExtractClasses(y mat.Matrix) []int {
	rows, _ := y.Dims()
	seen := make(map[int]struct{})
	for i := 0; i < rows; i++ {
		seen[int(y.At(i, 0))] = struct{}{}
	}
	classes := make([]int, 0, len(seen))
	for class := range seen {
		classes = append(classes, class)
	}
	sort.Ints(classes)
	return classes
}

// ClassIndex maps each label to its position in classes.
func ClassIndex(classes []int) map[int]int {
	index := make(map[int]int, len(classes))
	for i, class := range classes {
		index[class] = i
	}
	return index
}

// ArgMaxRow returns the column with the largest value in row i of m.
// Ties resolve to the lowest column.
func ArgMaxRow(m mat.Matrix, i int) int {
	_, cols := m.Dims()
	best := 0
	for j := 1; j < cols; j++ {
		if m.At(i, j) > m.At(i, best) {
			best = j
		}
	}
	return best
}
