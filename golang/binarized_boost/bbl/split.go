package bbl

import (
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
)

//BestSplitProperties is a candidate produced by a split scorer. BinID is continuous and may
//overshoot the valid bin range of the feature.
type BestSplitProperties struct {
	FeatureID uint32
	BinID     float64
	Score     float64
	Defined   bool
}

//ToSplit turns a candidate into a canonical split. Categorical features give TakeBin with the
//bin clamped to [0, BinCount]; float and CTR features give TakeGreater with the bin clamped to
//[0, BorderCount-1].
func ToSplit(catalog *FeatureCatalog, props BestSplitProperties) (BinarySplit, error) {
	if !props.Defined {
		return BinarySplit{}, configurationErrorf(props.FeatureID, "best split is not defined")
	}
	kind, err := catalog.Kind(props.FeatureID)
	if err != nil {
		return BinarySplit{}, err
	}
	binIdx := floorBin(props.BinID)

	split := BinarySplit{FeatureID: props.FeatureID}
	switch kind {
	case CategoricalFeature:
		binCount, err := catalog.BinCount(props.FeatureID)
		if err != nil {
			return BinarySplit{}, err
		}
		split.SplitType = TakeBin
		split.BinIdx = min(binIdx, binCount)
	case FloatFeature, CtrFeature:
		borderCount, err := catalog.BorderCount(props.FeatureID)
		if err != nil {
			return BinarySplit{}, err
		}
		if borderCount == 0 {
			return BinarySplit{}, configurationErrorf(props.FeatureID, "feature without borders can not be split")
		}
		split.SplitType = TakeGreater
		split.BinIdx = min(binIdx, borderCount-1)
	default:
		return BinarySplit{}, configurationErrorf(props.FeatureID, "unknown feature kind %v", kind)
	}
	return split, nil
}

func floorBin(binID float64) uint32 {
	switch {
	case math.IsNaN(binID) || binID <= 0:
		return 0
	case binID >= math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(math.Floor(binID))
}

//SelectBestCandidate returns the defined candidate with the lowest score. ok is false when no
//candidate is defined.
func SelectBestCandidate(candidates []BestSplitProperties) (best BestSplitProperties, ok bool) {
	firstTime := true
	for _, candidate := range candidates {
		if candidate.Defined && (firstTime || best.Score > candidate.Score) {
			firstTime = false
			best = candidate
		}
	}
	return best, !firstTime
}

//BestSplitMessage formats the diagnostic line of the best split at depth.
func BestSplitMessage(catalog *FeatureCatalog, split BinarySplit, score float64, depth int) (string, error) {
	comparison, err := splitComparison(catalog, split)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Best split for depth %d: %d / %d (%s) with score %s",
		depth, split.FeatureID, split.BinIdx, comparison, strconv.FormatFloat(score, 'g', -1, 64))
	if catalog.IsCtr(split.FeatureID) {
		ctr, err := catalog.Ctr(split.FeatureID)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, " tensor : %v  (ctr type %v)", ctr.Tensor, ctr.Configuration.Type)
	}
	return sb.String(), nil
}

func splitComparison(catalog *FeatureCatalog, split BinarySplit) (string, error) {
	if split.SplitType == TakeBin {
		return "TakeBin", nil
	}
	borders, err := catalog.Borders(split.FeatureID)
	if err != nil {
		return "", err
	}
	nanMode, err := catalog.NanMode(split.FeatureID)
	if err != nil {
		return "", err
	}
	idx := int(split.BinIdx)
	switch nanMode {
	case NanMin:
		if idx == 0 {
			return "== -inf (nan)", nil
		}
		idx--
	case NanMax:
		if idx == len(borders) {
			return "== +inf (nan)", nil
		}
	}
	if idx >= len(borders) {
		return "", configurationErrorf(split.FeatureID, "border %d is outside of %d borders", split.BinIdx, len(borders))
	}
	return ">" + strconv.FormatFloat(borders[idx], 'g', -1, 64), nil
}

//PrintBestScore logs the best split of depth.
func PrintBestScore(catalog *FeatureCatalog, split BinarySplit, score float64, depth int) {
	message, err := BestSplitMessage(catalog, split, score, depth)
	if err != nil {
		log.Print("can't describe best split ", split, ": ", err)
		return
	}
	log.Print(message)
}
