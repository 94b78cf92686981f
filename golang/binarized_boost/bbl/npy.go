package bbl

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

//ReadNpy reads the content of npy file into a dense matrix
func ReadNpy(fileName string) (*mat.Dense, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read npy header of %s: %w", fileName, err)
	}

	denseMat := &mat.Dense{}
	if err := r.Read(denseMat); err != nil {
		return nil, fmt.Errorf("read npy %s: %w", fileName, err)
	}
	return denseMat, nil
}

//ReadFloatColumnNpy loads a one-dimensional float64 npy array as a raw numeric column.
func ReadFloatColumnNpy(fileName string) (*FloatColumn, error) {
	log.Print("\ttry to load float column <", fileName, ">")
	var values []float64
	if err := readNpySlice(fileName, &values); err != nil {
		return nil, err
	}
	return NewFloatColumn(values), nil
}

//ReadCatColumnNpy loads a one-dimensional uint32 npy array of hashed categorical values.
func ReadCatColumnNpy(fileName string) (*CatColumn, error) {
	log.Print("\ttry to load categorical column <", fileName, ">")
	var values []uint32
	if err := readNpySlice(fileName, &values); err != nil {
		return nil, err
	}
	return &CatColumn{values: values}, nil
}

func readNpySlice(fileName string, ptr any) error {
	f, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	r, err := npyio.NewReader(f)
	if err != nil {
		return fmt.Errorf("read npy header of %s: %w", fileName, err)
	}
	if len(r.Header.Descr.Shape) != 1 {
		return fmt.Errorf("%w: %s has shape %v, expected a one-dimensional column", ErrParse, fileName, r.Header.Descr.Shape)
	}
	if err := r.Read(ptr); err != nil {
		return fmt.Errorf("read npy %s: %w", fileName, err)
	}
	return nil
}

//WriteBinsNpy writes a bin buffer as a one-dimensional uint32 npy array.
func WriteBinsNpy(fileName string, bins []uint32) error {
	dst, err := os.Create(fileName)
	if err != nil {
		return err
	}
	if err := npyio.Write(dst, bins); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

//ParseFloatColumn converts textual values of source column sourceColumn. Empty tokens and
//"nan" in any case are NaN. A malformed token fails with a ParseError naming its row.
func ParseFloatColumn(sourceColumn int, tokens []string) (*FloatColumn, error) {
	values := make([]float64, len(tokens))
	for row, token := range tokens {
		trimmed := strings.TrimSpace(token)
		if trimmed == "" || strings.EqualFold(trimmed, "nan") {
			values[row] = nanValue
			continue
		}
		value, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, &ParseError{Row: row, Column: sourceColumn, Value: token, cause: err}
		}
		values[row] = value
	}
	return NewFloatColumn(values), nil
}
