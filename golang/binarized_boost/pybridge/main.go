// SPDX-License-Identifier: Apache-2.0

package main

/*
#cgo CFLAGS: -I.
#include <stdlib.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"unsafe"

	"github.com/tarstars/binarized_boosting/golang/binarized_boost/bbl"
)

//session owns one learn dataset, an optional test dataset linked to it and the bin cache
//shared by all ComputeBins calls.
type session struct {
	catalog *bbl.FeatureCatalog
	hashes  *bbl.PerfectHashStore
	learn   *bbl.Dataset
	test    *bbl.Dataset
	cache   *bbl.BinCache

	catFeatureCount uint32
	nextCatIdx      uint32
	threadsNum      int
}

var (
	handleMu   sync.Mutex
	nextHandle uint64 = 1
	sessions          = make(map[uint64]*session)

	lastErrorMu sync.Mutex
	lastError   string

	logSilenceOnce sync.Once
)

func setLastError(err error) {
	lastErrorMu.Lock()
	defer lastErrorMu.Unlock()
	if err != nil {
		lastError = err.Error()
	} else {
		lastError = ""
	}
}

func getLastError() string {
	lastErrorMu.Lock()
	defer lastErrorMu.Unlock()
	return lastError
}

func storeSession(s *session) uint64 {
	handleMu.Lock()
	defer handleMu.Unlock()
	handle := nextHandle
	sessions[handle] = s
	nextHandle++
	return handle
}

func fetchSession(handle uint64) (*session, error) {
	handleMu.Lock()
	defer handleMu.Unlock()
	s, ok := sessions[handle]
	if !ok {
		return nil, errors.New("invalid session handle")
	}
	return s, nil
}

func (s *session) options() []bbl.Option {
	return []bbl.Option{bbl.WithWorkers(s.threadsNum)}
}

func copyFloatSlice(ptr *C.double, length int) ([]float64, error) {
	if length < 0 {
		return nil, errors.New("negative length")
	}
	if length == 0 {
		return nil, nil
	}
	if ptr == nil {
		return nil, errors.New("null pointer for non-empty slice")
	}
	src := unsafe.Slice((*float64)(unsafe.Pointer(ptr)), length)
	dst := make([]float64, length)
	copy(dst, src)
	return dst, nil
}

func copyUintSlice(ptr *C.uint, length int) ([]uint32, error) {
	if length < 0 {
		return nil, errors.New("negative length")
	}
	if length == 0 {
		return nil, nil
	}
	if ptr == nil {
		return nil, errors.New("null pointer for non-empty slice")
	}
	src := unsafe.Slice((*uint32)(unsafe.Pointer(ptr)), length)
	dst := make([]uint32, length)
	copy(dst, src)
	return dst, nil
}

func uintSliceFromPtr(ptr *C.uint, length int) ([]uint32, error) {
	if length < 0 {
		return nil, errors.New("negative length")
	}
	if length == 0 {
		return nil, nil
	}
	if ptr == nil {
		return nil, errors.New("null pointer for non-empty slice")
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(ptr)), length), nil
}

//export NewSession
func NewSession(learnRows, testRows, catFeatureCount, threadsNum C.int) C.ulonglong {
	setLastError(nil)
	logSilenceOnce.Do(func() {
		log.SetOutput(io.Discard)
	})

	if learnRows <= 0 || testRows < 0 || catFeatureCount < 0 {
		setLastError(errors.New("invalid session dimensions"))
		return 0
	}
	cache, err := bbl.NewBinCache()
	if err != nil {
		setLastError(err)
		return 0
	}

	s := &session{
		catalog:         bbl.NewFeatureCatalog(),
		cache:           cache,
		catFeatureCount: uint32(catFeatureCount),
		threadsNum:      max(1, int(threadsNum)),
	}
	s.hashes = bbl.NewPerfectHashStore(s.catFeatureCount)
	s.learn = bbl.NewDataset(s.catalog, s.hashes, bbl.NewFullSubset(int(learnRows)), s.options()...)
	s.learn.SetDescription("learn")
	if testRows > 0 {
		s.test = bbl.NewDataset(s.catalog, s.hashes, bbl.NewFullSubset(int(testRows)), s.options()...)
		s.test.SetDescription("test")
		if err := s.test.LinkHistory(s.learn); err != nil {
			setLastError(err)
			return 0
		}
	}
	return C.ulonglong(storeSession(s))
}

//export FreeSession
func FreeSession(handle C.ulonglong) {
	handleMu.Lock()
	s, ok := sessions[uint64(handle)]
	delete(sessions, uint64(handle))
	handleMu.Unlock()
	if ok {
		if err := s.hashes.Close(); err != nil {
			setLastError(err)
		}
	}
}

//AddFloatFeature registers a numeric feature with its borders and columns. Returns the
//feature id or -1 on error.
//
//export AddFloatFeature
func AddFloatFeature(
	handle C.ulonglong,
	name *C.char,
	bordersPtr *C.double,
	bordersCount C.int,
	nanMode C.int,
	learnPtr *C.double,
	testPtr *C.double,
) C.longlong {
	setLastError(nil)
	s, err := fetchSession(uint64(handle))
	if err != nil {
		setLastError(err)
		return -1
	}
	borders, err := copyFloatSlice(bordersPtr, int(bordersCount))
	if err != nil {
		setLastError(err)
		return -1
	}
	featureID, err := s.catalog.AddFloatFeature(C.GoString(name), borders, bbl.NanMode(nanMode))
	if err != nil {
		setLastError(err)
		return -1
	}

	learnValues, err := copyFloatSlice(learnPtr, s.learn.SampleCount())
	if err != nil {
		setLastError(err)
		return -1
	}
	if err := s.learn.AddFloatColumn(featureID, bbl.NewFloatColumn(learnValues)); err != nil {
		setLastError(err)
		return -1
	}
	if s.test != nil {
		testValues, err := copyFloatSlice(testPtr, s.test.SampleCount())
		if err != nil {
			setLastError(err)
			return -1
		}
		if err := s.test.AddFloatColumn(featureID, bbl.NewFloatColumn(testValues)); err != nil {
			setLastError(err)
			return -1
		}
	}
	return C.longlong(featureID)
}

//AddCatFeature registers a categorical feature from hashed values. The perfect hash is built
//from the learn column first. Returns the feature id or -1 on error.
//
//export AddCatFeature
func AddCatFeature(handle C.ulonglong, name *C.char, learnPtr *C.uint, testPtr *C.uint) C.longlong {
	setLastError(nil)
	s, err := fetchSession(uint64(handle))
	if err != nil {
		setLastError(err)
		return -1
	}
	if s.nextCatIdx >= s.catFeatureCount {
		setLastError(fmt.Errorf("session holds only %d categorical features", s.catFeatureCount))
		return -1
	}

	learnValues, err := copyUintSlice(learnPtr, s.learn.SampleCount())
	if err != nil {
		setLastError(err)
		return -1
	}
	columns := []*bbl.CatColumn{bbl.NewCatColumn(learnValues)}
	if s.test != nil {
		testValues, err := copyUintSlice(testPtr, s.test.SampleCount())
		if err != nil {
			setLastError(err)
			return -1
		}
		columns = append(columns, bbl.NewCatColumn(testValues))
	}

	featureID := s.catalog.AddCategoricalFeature(C.GoString(name), s.nextCatIdx, 0)
	s.nextCatIdx++
	if err := bbl.UpdatePerfectHash(s.catalog, s.hashes, featureID, columns...); err != nil {
		setLastError(err)
		return -1
	}
	if err := s.learn.AddCatColumn(featureID, columns[0]); err != nil {
		setLastError(err)
		return -1
	}
	if s.test != nil {
		if err := s.test.AddCatColumn(featureID, columns[1]); err != nil {
			setLastError(err)
			return -1
		}
	}
	return C.longlong(featureID)
}

//ComputeBins writes the leaf index of every sample of the learn (onTest == 0) or test dataset
//into outputPtr. Split i is (featureIDs[i], binIdx[i], splitTypes[i]) with split type 0 for
//TakeBin and 1 for TakeGreater.
//
//export ComputeBins
func ComputeBins(
	handle C.ulonglong,
	featureIDsPtr *C.uint,
	binIdxPtr *C.uint,
	splitTypesPtr *C.uint,
	depth C.int,
	onTest C.int,
	outputPtr *C.uint,
) C.int {
	setLastError(nil)
	s, err := fetchSession(uint64(handle))
	if err != nil {
		setLastError(err)
		return 1
	}

	featureIDs, err := copyUintSlice(featureIDsPtr, int(depth))
	if err != nil {
		setLastError(err)
		return 2
	}
	binIdx, err := copyUintSlice(binIdxPtr, int(depth))
	if err != nil {
		setLastError(err)
		return 2
	}
	splitTypes, err := copyUintSlice(splitTypesPtr, int(depth))
	if err != nil {
		setLastError(err)
		return 2
	}
	structure := bbl.TreeStructure{Splits: make([]bbl.BinarySplit, int(depth))}
	for i := range structure.Splits {
		structure.Splits[i] = bbl.BinarySplit{
			FeatureID: featureIDs[i],
			BinIdx:    binIdx[i],
			SplitType: bbl.SplitType(splitTypes[i]),
		}
	}

	dataset := s.learn
	if onTest != 0 {
		if s.test == nil {
			setLastError(errors.New("session has no test dataset"))
			return 3
		}
		dataset = s.test
	}
	bins, err := bbl.GetBinsForModel(s.cache, s.catalog, dataset, structure, s.options()...)
	if err != nil {
		setLastError(err)
		return 4
	}

	outSlice, err := uintSliceFromPtr(outputPtr, len(bins))
	if err != nil {
		setLastError(err)
		return 5
	}
	copy(outSlice, bins)
	return 0
}

//export GetLastError
func GetLastError() *C.char {
	errStr := getLastError()
	if errStr == "" {
		return nil
	}
	return C.CString(errStr)
}

//export FreeCString
func FreeCString(str *C.char) {
	if str != nil {
		C.free(unsafe.Pointer(str))
	}
}

func main() {}
