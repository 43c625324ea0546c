package gltfsource

import (
	"fmt"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

func accessor(doc *gltf.Document, index int) (*gltf.Accessor, error) {
	if index < 0 || index >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", index)
	}
	return doc.Accessors[index], nil
}

func readPositions(doc *gltf.Document, index int) ([][3]float32, error) {
	acc, err := accessor(doc, index)
	if err != nil {
		return nil, err
	}
	out, err := modeler.ReadPosition(doc, acc, nil)
	if err != nil {
		return nil, fmt.Errorf("accessor %d: %w", index, err)
	}
	return out, nil
}

func readNormals(doc *gltf.Document, index int) ([][3]float32, error) {
	acc, err := accessor(doc, index)
	if err != nil {
		return nil, err
	}
	out, err := modeler.ReadNormal(doc, acc, nil)
	if err != nil {
		return nil, fmt.Errorf("accessor %d: %w", index, err)
	}
	return out, nil
}

func readTexCoords(doc *gltf.Document, index int) ([][2]float32, error) {
	acc, err := accessor(doc, index)
	if err != nil {
		return nil, err
	}
	out, err := modeler.ReadTextureCoord(doc, acc, nil)
	if err != nil {
		return nil, fmt.Errorf("accessor %d: %w", index, err)
	}
	return out, nil
}

// readColors reads RGB or RGBA colors as floats in [0,1]. RGB gets an
// opaque alpha.
func readColors(doc *gltf.Document, index int) ([][4]float32, bool, error) {
	acc, err := accessor(doc, index)
	if err != nil {
		return nil, false, err
	}
	raw, err := modeler.ReadColor(doc, acc, nil)
	if err != nil {
		return nil, false, fmt.Errorf("accessor %d: %w", index, err)
	}
	out := make([][4]float32, len(raw))
	for i, c := range raw {
		for k, v := range c {
			out[i][k] = float32(v) / 255
		}
	}
	return out, acc.Type == gltf.AccessorVec4, nil
}

func readIndices(doc *gltf.Document, index int) ([]uint32, error) {
	acc, err := accessor(doc, index)
	if err != nil {
		return nil, err
	}
	out, err := modeler.ReadIndices(doc, acc, nil)
	if err != nil {
		return nil, fmt.Errorf("accessor %d: %w", index, err)
	}
	return out, nil
}
