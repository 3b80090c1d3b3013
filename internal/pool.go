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
	"runtime"
	"sync"
)

// Pools of constant sized scratch arrays, to reduce allocation overhead of
// per-row and per-column statistics running on many goroutines at once.

var poolFloat32 = struct {
	sync.RWMutex
	m map[int]*sync.Pool
}{m: make(map[int]*sync.Pool)}

var poolBool = struct {
	sync.RWMutex
	m map[int]*sync.Pool
}{m: make(map[int]*sync.Pool)}

// Clears all memory pools and triggers garbage collection
func ClearPools() {
	poolFloat32.Lock()
	poolFloat32.m = make(map[int]*sync.Pool)
	poolFloat32.Unlock()

	poolBool.Lock()
	poolBool.m = make(map[int]*sync.Pool)
	poolBool.Unlock()

	runtime.GC()
}

// Returns a pool for float32 arrays of the given size
func getSizedPoolFloat32(size int) *sync.Pool {
	poolFloat32.RLock()
	pool := poolFloat32.m[size]
	poolFloat32.RUnlock()
	if pool == nil {
		pool = &sync.Pool{
			New: func() interface{} {
				return make([]float32, size)
			},
		}
		poolFloat32.Lock()
		if existing := poolFloat32.m[size]; existing != nil {
			pool = existing
		} else {
			poolFloat32.m[size] = pool
		}
		poolFloat32.Unlock()
	}
	return pool
}

// Retrieves an array of given size and type from pool. Contents are undefined
func GetArrayOfFloat32FromPool(size int) []float32 {
	pool := getSizedPoolFloat32(size)
	return pool.Get().([]float32)
}

// Returns an array of given size and type to the pool
func PutArrayOfFloat32IntoPool(arr []float32) {
	pool := getSizedPoolFloat32(cap(arr))
	pool.Put(arr[:cap(arr)])
}

// Returns a pool for bool arrays of the given size
func getSizedPoolBool(size int) *sync.Pool {
	poolBool.RLock()
	pool := poolBool.m[size]
	poolBool.RUnlock()
	if pool == nil {
		pool = &sync.Pool{
			New: func() interface{} {
				return make([]bool, size)
			},
		}
		poolBool.Lock()
		if existing := poolBool.m[size]; existing != nil {
			pool = existing
		} else {
			poolBool.m[size] = pool
		}
		poolBool.Unlock()
	}
	return pool
}

// Retrieves a cleared bool array of given size from pool
func GetArrayOfBoolFromPool(size int) []bool {
	pool := getSizedPoolBool(size)
	arr := pool.Get().([]bool)
	for i := range arr {
		arr[i] = false
	}
	return arr
}

// Returns a bool array to the pool
func PutArrayOfBoolIntoPool(arr []bool) {
	pool := getSizedPoolBool(cap(arr))
	pool.Put(arr[:cap(arr)])
}
