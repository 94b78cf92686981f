package bbl

import (
	"fmt"
	"strconv"
	"strings"
)

//MaxTreeDepth keeps leaf indices within 32 bits.
const MaxTreeDepth = 32

//SplitType is the predicate a BinarySplit applies to a quantized value.
type SplitType int

const (
	//TakeBin tests exact bin equality (categorical features).
	TakeBin SplitType = iota
	//TakeGreater tests quantized value > BinIdx (numeric and CTR features).
	TakeGreater
)

func (t SplitType) String() string {
	switch t {
	case TakeBin:
		return "TakeBin"
	case TakeGreater:
		return "TakeGreater"
	}
	return fmt.Sprintf("SplitType(%d)", int(t))
}

//ParseSplitType converts a textual split type.
func ParseSplitType(s string) (SplitType, error) {
	switch strings.ToLower(s) {
	case "takebin", "take_bin":
		return TakeBin, nil
	case "takegreater", "take_greater":
		return TakeGreater, nil
	}
	return TakeBin, fmt.Errorf("%w: unknown split type %q", ErrConfiguration, s)
}

//BinarySplit is a test on the quantized value of one feature.
type BinarySplit struct {
	FeatureID uint32
	BinIdx    uint32
	SplitType SplitType
}

//Apply returns 1 when the quantized value passes the split and 0 otherwise.
func (s BinarySplit) Apply(value uint32) uint32 {
	switch s.SplitType {
	case TakeBin:
		if value == s.BinIdx {
			return 1
		}
	case TakeGreater:
		if value > s.BinIdx {
			return 1
		}
	}
	return 0
}

func (s BinarySplit) String() string {
	return fmt.Sprintf("%d/%d/%v", s.FeatureID, s.BinIdx, s.SplitType)
}

//TreeStructure is an oblivious tree: the same ordered splits apply to every row, so a row's
//leaf index is the sequence of split outcomes read as a binary number.
type TreeStructure struct {
	Splits []BinarySplit
}

func (t TreeStructure) Depth() int {
	return len(t.Splits)
}

func (t TreeStructure) LeafCount() uint64 {
	return uint64(1) << uint(len(t.Splits))
}

//Key is the canonical encoding of the structure, used as a cache key.
func (t TreeStructure) Key() string {
	var sb strings.Builder
	for i, split := range t.Splits {
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(strconv.FormatUint(uint64(split.FeatureID), 10))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(uint64(split.BinIdx), 10))
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(int(split.SplitType)))
	}
	return sb.String()
}

//Features returns the distinct feature ids of the splits in order of first use.
func (t TreeStructure) Features() []uint32 {
	seen := make(map[uint32]bool, len(t.Splits))
	features := make([]uint32, 0, len(t.Splits))
	for _, split := range t.Splits {
		if !seen[split.FeatureID] {
			seen[split.FeatureID] = true
			features = append(features, split.FeatureID)
		}
	}
	return features
}

//Validate checks depth, split types and bin ranges against the catalog.
func (t TreeStructure) Validate(catalog *FeatureCatalog) error {
	if len(t.Splits) > MaxTreeDepth {
		return fmt.Errorf("%w: tree depth %d exceeds %d", ErrConfiguration, len(t.Splits), MaxTreeDepth)
	}
	for _, split := range t.Splits {
		if err := validateSplit(catalog, split); err != nil {
			return err
		}
	}
	return nil
}

func validateSplit(catalog *FeatureCatalog, split BinarySplit) error {
	kind, err := catalog.Kind(split.FeatureID)
	if err != nil {
		return err
	}
	switch kind {
	case CategoricalFeature:
		if split.SplitType != TakeBin {
			return configurationErrorf(split.FeatureID, "categorical split must be TakeBin, got %v", split.SplitType)
		}
		binCount, err := catalog.BinCount(split.FeatureID)
		if err != nil {
			return err
		}
		if split.BinIdx > binCount {
			return configurationErrorf(split.FeatureID, "bin %d is outside [0, %d]", split.BinIdx, binCount)
		}
	case FloatFeature, CtrFeature:
		if split.SplitType != TakeGreater {
			return configurationErrorf(split.FeatureID, "%v split must be TakeGreater, got %v", kind, split.SplitType)
		}
		borderCount, err := catalog.BorderCount(split.FeatureID)
		if err != nil {
			return err
		}
		if split.BinIdx >= borderCount {
			return configurationErrorf(split.FeatureID, "border %d is outside [0, %d)", split.BinIdx, borderCount)
		}
	default:
		return configurationErrorf(split.FeatureID, "unknown feature kind %v", kind)
	}
	return nil
}
