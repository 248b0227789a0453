package gpkg

import (
	"encoding/binary"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// GeoPackage geometry blob header flags.
const (
	flagLittleEndian = 0x01
	flagEnvelopeXY   = 0x02
	flagEmpty        = 0x10
	flagExtended     = 0x20
)

// envelopeSizes maps the envelope indicator (flag bits 1-3) to its byte length.
var envelopeSizes = map[byte]int{0: 0, 1: 32, 2: 48, 3: 48, 4: 64}

// DecodeGeometry parses a GeoPackage geometry blob. It returns a nil geometry
// for empty geometries and NULL blobs.
func DecodeGeometry(b []byte) (geom.T, int, error) {
	if len(b) == 0 {
		return nil, 0, nil
	}
	if len(b) < 8 || b[0] != 'G' || b[1] != 'P' {
		return nil, 0, eris.New("gpkg: geometry blob missing GP magic")
	}
	flags := b[3]
	if flags&flagExtended != 0 {
		return nil, 0, eris.New("gpkg: extended geometry types are not supported")
	}

	var order binary.ByteOrder = binary.BigEndian
	if flags&flagLittleEndian != 0 {
		order = binary.LittleEndian
	}
	srid := int(int32(order.Uint32(b[4:8])))

	envSize, ok := envelopeSizes[(flags>>1)&0x07]
	if !ok {
		return nil, srid, eris.Errorf("gpkg: invalid envelope indicator in flags 0x%02x", flags)
	}
	if flags&flagEmpty != 0 {
		return nil, srid, nil
	}

	offset := 8 + envSize
	if len(b) <= offset {
		return nil, srid, eris.New("gpkg: truncated geometry blob")
	}
	g, err := wkb.Unmarshal(b[offset:])
	if err != nil {
		return nil, srid, eris.Wrap(err, "gpkg: decode WKB")
	}
	return g, srid, nil
}

// EncodeGeometry builds a little-endian GeoPackage geometry blob with an XY
// envelope. A nil geometry encodes to a NULL blob.
func EncodeGeometry(g geom.T, srid int) ([]byte, error) {
	if g == nil {
		return nil, nil
	}

	body, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: encode WKB")
	}

	bounds := g.Bounds()
	empty := bounds == nil || bounds.IsEmpty()

	header := make([]byte, 8, 8+32+len(body))
	header[0], header[1], header[2] = 'G', 'P', 0
	flags := byte(flagLittleEndian)
	if empty {
		flags |= flagEmpty
	} else {
		flags |= flagEnvelopeXY
	}
	header[3] = flags
	binary.LittleEndian.PutUint32(header[4:8], uint32(int32(srid)))

	if !empty {
		for _, v := range []float64{bounds.Min(0), bounds.Max(0), bounds.Min(1), bounds.Max(1)} {
			header = binary.LittleEndian.AppendUint64(header, math.Float64bits(v))
		}
	}
	return append(header, body...), nil
}

// geometryTypeName returns the gpkg_geometry_columns type name for g.
func geometryTypeName(g geom.T) string {
	switch g.(type) {
	case *geom.Point:
		return "POINT"
	case *geom.LineString:
		return "LINESTRING"
	case *geom.Polygon:
		return "POLYGON"
	case *geom.MultiPoint:
		return "MULTIPOINT"
	case *geom.MultiLineString:
		return "MULTILINESTRING"
	case *geom.MultiPolygon:
		return "MULTIPOLYGON"
	default:
		return "GEOMETRY"
	}
}
