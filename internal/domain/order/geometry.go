package order

import "github.com/polyforge/printfarm-go/internal/domain/inventory"

// GeometryModel is a mesh waiting to be sliced. Dimensions come from the
// orientation analysis run at intake.
type GeometryModel struct {
	ID       int
	Name     string
	FilePath string
	SizeX    float64
	SizeY    float64
	SizeZ    float64
}

// FitsOn reports whether the oriented model fits on the given bed, allowing
// axis permutation.
func (g *GeometryModel) FitsOn(bed inventory.BedShape) bool {
	return bed.Fits(g.SizeX, g.SizeY, g.SizeZ)
}
