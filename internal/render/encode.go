package render

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/paulmach/orb/geojson"
)

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: encode png: %v", ErrRenderFailure, err)
	}
	return buf.Bytes(), nil
}

// EncodeGeoJSON encodes a feature collection.
func EncodeGeoJSON(fc *geojson.FeatureCollection) ([]byte, error) {
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: encode geojson: %v", ErrRenderFailure, err)
	}
	return data, nil
}
