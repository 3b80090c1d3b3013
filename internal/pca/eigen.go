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

// Package pca fits robust low-rank models of detector noise and reconstructs
// them from partially masked data.
package pca

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"
)

// A fitted eigen-system. Immutable once returned from Fit
type EigenSystem struct {
	Mean    []float64  // per-feature mean
	Vectors *mat.Dense // features x rank, orthonormal columns
	Values  []float64  // eigenvalues in descending order
}

// Number of features, i.e. the length of a sample
func (es *EigenSystem) Features() int { return len(es.Mean) }

// Number of fitted components
func (es *EigenSystem) Rank() int { return len(es.Values) }

func (es *EigenSystem) String() string {
	return fmt.Sprintf("eigen-system with %d features, rank %d", es.Features(), es.Rank())
}

const eigenMagic = "EIGS"

var errBadEigenBlob = errors.New("invalid eigen-system encoding")

// Encodes the eigen-system with gonum's binary format for each part, behind a
// magic tag and length prefixes
func (es *EigenSystem) MarshalBinary() ([]byte, error) {
	mean, err := mat.NewVecDense(len(es.Mean), es.Mean).MarshalBinary()
	if err != nil {
		return nil, err
	}
	values, err := mat.NewVecDense(len(es.Values), es.Values).MarshalBinary()
	if err != nil {
		return nil, err
	}
	vectors, err := es.Vectors.MarshalBinary()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(eigenMagic)
	for _, part := range [][]byte{mean, values, vectors} {
		var l [8]byte
		binary.LittleEndian.PutUint64(l[:], uint64(len(part)))
		buf.Write(l[:])
		buf.Write(part)
	}
	return buf.Bytes(), nil
}

func (es *EigenSystem) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	magic := make([]byte, len(eigenMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != eigenMagic {
		return errBadEigenBlob
	}
	parts := make([][]byte, 3)
	for i := range parts {
		var l uint64
		if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
			return errBadEigenBlob
		}
		if l > uint64(r.Len()) {
			return errBadEigenBlob
		}
		parts[i] = make([]byte, l)
		if _, err := io.ReadFull(r, parts[i]); err != nil {
			return errBadEigenBlob
		}
	}

	var mean, values mat.VecDense
	if err := mean.UnmarshalBinary(parts[0]); err != nil {
		return fmt.Errorf("mean: %w", err)
	}
	if err := values.UnmarshalBinary(parts[1]); err != nil {
		return fmt.Errorf("values: %w", err)
	}
	vectors := &mat.Dense{}
	if err := vectors.UnmarshalBinary(parts[2]); err != nil {
		return fmt.Errorf("vectors: %w", err)
	}
	rows, cols := vectors.Dims()
	if rows != mean.Len() || cols != values.Len() {
		return fmt.Errorf("eigen-system dimensions %dx%d do not match mean %d and values %d",
			rows, cols, mean.Len(), values.Len())
	}

	es.Mean = vecToSlice(&mean)
	es.Values = vecToSlice(&values)
	es.Vectors = vectors
	return nil
}

func vecToSlice(v *mat.VecDense) []float64 {
	res := make([]float64, v.Len())
	for i := range res {
		res[i] = v.AtVec(i)
	}
	return res
}
