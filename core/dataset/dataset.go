// Package dataset reads and writes the on-disk inputs of a clustering
// run: fixed-width float32 embedding matrices and the genome-to-protein
// pointer array. Both formats are little-endian with a small header so
// truncated or mismatched files fail loudly instead of shifting data.
package dataset

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	matrixMagic  = 0x4d545350 // "PSTM"
	pointerMagic = 0x50545350 // "PSTP"
)

var (
	ErrBadMagic  = errors.New("dataset: unrecognized file magic")
	ErrTruncated = errors.New("dataset: truncated payload")
)

// WriteMatrix writes an embedding matrix: magic, count, dim, then
// count*dim float32 values row-major.
func WriteMatrix(path string, vectors [][]float32) error {
	if len(vectors) == 0 {
		return fmt.Errorf("dataset: refusing to write empty matrix")
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("dataset: row %d has dim %d, want %d", i, len(v), dim)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create matrix file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	header := []uint32{matrixMagic, uint32(len(vectors)), uint32(dim)}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write matrix header: %w", err)
	}
	for _, v := range vectors {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write matrix row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush matrix: %w", err)
	}
	return f.Sync()
}

// ReadMatrix loads an embedding matrix written by WriteMatrix.
func ReadMatrix(path string) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open matrix file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var header [3]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read matrix header: %w", err)
	}
	if header[0] != matrixMagic {
		return nil, fmt.Errorf("%w: %#x", ErrBadMagic, header[0])
	}
	count, dim := int(header[1]), int(header[2])
	if count == 0 || dim == 0 {
		return nil, fmt.Errorf("dataset: degenerate matrix %dx%d", count, dim)
	}

	vectors := make([][]float32, count)
	for i := range vectors {
		row := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrTruncated, i, err)
		}
		vectors[i] = row
	}

	// Extra bytes mean the header lied about the shape.
	if _, err := r.ReadByte(); err != io.EOF {
		return nil, fmt.Errorf("dataset: trailing bytes after %dx%d matrix", count, dim)
	}
	return vectors, nil
}

// WritePointer writes a pointer array: magic, length, then int64
// offsets.
func WritePointer(path string, ptr []int64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create pointer file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, []uint32{pointerMagic, uint32(len(ptr))}); err != nil {
		return fmt.Errorf("write pointer header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, ptr); err != nil {
		return fmt.Errorf("write pointer payload: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush pointer: %w", err)
	}
	return f.Sync()
}

// ReadPointer loads a pointer array written by WritePointer. Structural
// validation (monotonicity, totals) is the hierarchy package's job;
// this only checks the file is whole.
func ReadPointer(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pointer file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var header [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read pointer header: %w", err)
	}
	if header[0] != pointerMagic {
		return nil, fmt.Errorf("%w: %#x", ErrBadMagic, header[0])
	}

	ptr := make([]int64, header[1])
	if err := binary.Read(r, binary.LittleEndian, ptr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if _, err := r.ReadByte(); err != io.EOF {
		return nil, fmt.Errorf("dataset: trailing bytes after pointer array")
	}
	return ptr, nil
}
