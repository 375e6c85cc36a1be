/*
Copyright 2025 The Strife.ML Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package samples

import "fmt"

// Grid is a fixed-size, row-major rows × cols matrix of values. A training
// batch is a Grid of samples with one sequence per row; a decision input is a
// Grid of model inputs.
type Grid[T any] struct {
	rows  int
	cols  int
	cells []T
}

// NewGrid allocates a zeroed rows × cols grid. It panics if either dimension
// is not positive.
func NewGrid[T any](rows, cols int) Grid[T] {
	if rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("samples: invalid grid dimensions %dx%d", rows, cols))
	}
	return Grid[T]{rows: rows, cols: cols, cells: make([]T, rows*cols)}
}

// GridOf builds a grid from equally long rows, copying them.
func GridOf[T any](rows ...[]T) Grid[T] {
	if len(rows) == 0 {
		panic("samples: GridOf needs at least one row")
	}
	g := NewGrid[T](len(rows), len(rows[0]))
	for i, row := range rows {
		if len(row) != g.cols {
			panic(fmt.Sprintf("samples: row %d has %d cells, want %d", i, len(row), g.cols))
		}
		copy(g.Row(i), row)
	}
	return g
}

func (g Grid[T]) Rows() int { return g.rows }

func (g Grid[T]) Cols() int { return g.cols }

// Row returns row i as a slice aliasing the grid's storage.
func (g Grid[T]) Row(i int) []T {
	return g.cells[i*g.cols : (i+1)*g.cols : (i+1)*g.cols]
}

func (g Grid[T]) At(row, col int) T {
	return g.cells[g.index(row, col)]
}

func (g Grid[T]) Set(row, col int, v T) {
	g.cells[g.index(row, col)] = v
}

// Cells returns the backing storage in row-major order.
func (g Grid[T]) Cells() []T { return g.cells }

// Clone returns a deep copy of the cell storage.
func (g Grid[T]) Clone() Grid[T] {
	c := g
	c.cells = append([]T(nil), g.cells...)
	return c
}

func (g Grid[T]) index(row, col int) int {
	if row < 0 || row >= g.rows || col < 0 || col >= g.cols {
		panic(fmt.Sprintf("samples: cell (%d, %d) outside %dx%d grid", row, col, g.rows, g.cols))
	}
	return row*g.cols + col
}

// Batch is a training batch: BatchSize rows of SequenceLength samples each.
type Batch[I, O any] = Grid[Sample[I, O]]
