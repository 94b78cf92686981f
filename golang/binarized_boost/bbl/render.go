package bbl

import (
	"fmt"
	"path"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

//MaxRenderDepth bounds the size of rendered graphs.
const MaxRenderDepth = 8

var figureFormats = map[string]graphviz.Format{
	"png": graphviz.PNG,
	"svg": graphviz.SVG,
	"jpg": graphviz.JPG,
}

//splitDescription returns the label of a tree node for rendering as a graph
func splitDescription(catalog *FeatureCatalog, split BinarySplit) string {
	comparison, err := splitComparison(catalog, split)
	if err != nil {
		comparison = fmt.Sprintf("bin %d", split.BinIdx)
	}
	if split.SplitType == TakeBin {
		return fmt.Sprintf("f_%d == bin %d", split.FeatureID, split.BinIdx)
	}
	return fmt.Sprintf("f_%d %s", split.FeatureID, comparison)
}

//DrawStructure builds the graph of an oblivious tree. Every node of level d tests split d; the
//right child of a node is the branch where the split holds, the leaves are numbered by leaf index.
func DrawStructure(catalog *FeatureCatalog, structure TreeStructure) (*graphviz.Graphviz, *cgraph.Graph, error) {
	if structure.Depth() > MaxRenderDepth {
		return nil, nil, fmt.Errorf("%w: can't render a tree of depth %d, the limit is %d", ErrConfiguration, structure.Depth(), MaxRenderDepth)
	}
	graphViz := graphviz.New()
	graph, err := graphViz.Graph()
	if err != nil {
		return nil, nil, err
	}

	level := make([]*cgraph.Node, 1)
	for depth := 0; depth <= structure.Depth(); depth++ {
		current := make([]*cgraph.Node, 1<<uint(depth))
		for ind := range current {
			node, err := graph.CreateNode(fmt.Sprintf("d%d_%d", depth, ind))
			if err != nil {
				return nil, nil, err
			}
			if depth == structure.Depth() {
				node.Set("label", fmt.Sprintf("leaf %d", ind))
				node.Set("shape", "box")
			} else {
				node.Set("label", splitDescription(catalog, structure.Splits[depth]))
			}
			if depth > 0 {
				edge, err := graph.CreateEdge("", level[ind/2], node)
				if err != nil {
					return nil, nil, err
				}
				edge.SetLabel(fmt.Sprint(ind % 2))
			}
			current[ind] = node
		}
		level = current
	}
	return graphViz, graph, nil
}

//RenderStructures writes one picture per structure named <dumpPrefix>_<index>.<figureType>.
func RenderStructures(catalog *FeatureCatalog, structures []TreeStructure, dumpPrefix, figureType, picturesDirectory string) error {
	graphvizType, ok := figureFormats[figureType]
	if !ok {
		return fmt.Errorf("%w: unknown figure type %q", ErrConfiguration, figureType)
	}
	for graphInd, structure := range structures {
		filename := fmt.Sprintf("%s_%05d.%s", dumpPrefix, graphInd, figureType)
		graphViz, graph, err := DrawStructure(catalog, structure)
		if err != nil {
			return err
		}
		err = graphViz.RenderFilename(graph, graphvizType, path.Join(picturesDirectory, filename))
		_ = graph.Close()
		_ = graphViz.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
