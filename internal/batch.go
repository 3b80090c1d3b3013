// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package internal

import (
	"errors"

	"github.com/pbnjay/memory"
)

// Runs fn for indices 0..n-1 on at most maxThreads goroutines. Returns the
// error of each index in index order, nil where fn succeeded
func ParallelFor(n, maxThreads int, fn func(i int) error) []error {
	if n == 0 {
		return nil
	}
	if maxThreads < 1 {
		maxThreads = 1
	}
	errs := make([]error, n)
	limiter := make(chan bool, maxThreads)
	for i := 0; i < n; i++ {
		limiter <- true
		go func(i int) {
			defer func() { <-limiter }()
			errs[i] = fn(i)
		}(i)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
	return errs
}

// Joins all non-nil errors into one, or returns nil. The result wraps each
// error, in index order
func JoinErrors(errs []error) error {
	return errors.Join(errs...)
}

// Total physical memory in MB
func TotalMemoryMB() int {
	return int(memory.TotalMemory() / 1024 / 1024)
}

// Number of workers which fit into 70% of the given memory, if each needs
// bytesPerWorker. Between 1 and maxThreads. Unknown memory leaves maxThreads
func WorkersForMemory(bytesPerWorker int64, memoryMB, maxThreads int) int {
	if maxThreads < 1 {
		maxThreads = 1
	}
	if memoryMB <= 0 || bytesPerWorker <= 0 {
		return maxThreads
	}
	budget := int64(memoryMB) * 1024 * 1024 * 7 / 10
	n := int(budget / bytesPerWorker)
	if n < 1 {
		n = 1
	}
	if n > maxThreads {
		n = maxThreads
	}
	return n
}
