package geojson_test

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/rkm/pgstac-mosaic/pkg/geojson"
)

func ExampleParseBody() {
	body := []byte(`{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "properties": {}, "geometry": {"type": "Point", "coordinates": [4.5, 50.5]}},
			{"type": "Feature", "properties": {}, "geometry": {"type": "Polygon", "coordinates": [[[0, 0], [1, 0], [1, 1], [0, 0]]]}}
		]
	}`)

	shapes, err := geojson.ParseBody(body)
	if err != nil {
		log.Fatal(err)
	}
	for _, s := range shapes {
		wkt, _ := geojson.ToWKT(s)
		fmt.Println(wkt)
	}
	// Output:
	// POINT (4.5 50.5)
	// POLYGON ((0 0, 1 0, 1 1, 0 0))
}

func ExampleNewPolygonFromBBox() {
	p, err := geojson.NewPolygonFromBBox([]float64{-10, -5, 10, 5})
	if err != nil {
		log.Fatal(err)
	}

	g, err := geojson.FromGeom(p)
	if err != nil {
		log.Fatal(err)
	}
	bbox, _ := geojson.Bounds(p)
	fmt.Println(g.Type, p.NumCoords(), bbox)
	// Output:
	// Polygon 5 [-10 -5 10 5]
}

func ExampleBounds() {
	g := &geojson.Geometry{
		Type:        "LineString",
		Coordinates: json.RawMessage(`[[-122.5, 37.7], [-122.3, 37.9]]`),
	}
	t, err := g.Decode()
	if err != nil {
		log.Fatal(err)
	}

	bbox, _ := geojson.Bounds(t)
	fmt.Printf("west=%.1f south=%.1f east=%.1f north=%.1f\n", bbox[0], bbox[1], bbox[2], bbox[3])
	// Output:
	// west=-122.5 south=37.7 east=-122.3 north=37.9
}
