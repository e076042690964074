package inventory

// BedShape is the printable volume of a printer in millimeters.
type BedShape struct {
	X float64
	Y float64
	Z float64
}

// Sorted returns the three dimensions in ascending order. Fit checks compare
// sorted piece dimensions against sorted bed dimensions so a part that fits
// rotated still counts as printable.
func (b BedShape) Sorted() [3]float64 {
	dims := [3]float64{b.X, b.Y, b.Z}
	for i := 0; i < 2; i++ {
		for j := i + 1; j < 3; j++ {
			if dims[j] < dims[i] {
				dims[i], dims[j] = dims[j], dims[i]
			}
		}
	}
	return dims
}

// Fits reports whether a part of the given dimensions fits on this bed,
// allowing axis permutation.
func (b BedShape) Fits(x, y, z float64) bool {
	part := BedShape{X: x, Y: y, Z: z}.Sorted()
	bed := b.Sorted()
	for i := 0; i < 3; i++ {
		if part[i] > bed[i] {
			return false
		}
	}
	return true
}

// PrinterProfile is the slicer-facing description of a printer model.
// Immutable once imported from the slicer profile bundle.
type PrinterProfile struct {
	ID             int
	Name           string
	PrinterModel   string
	NozzleDiameter float64
	Bed            BedShape
	BaseQuality    float64
	Config         map[string]string
}

// MaterialProfile carries the slicer settings for one material family.
type MaterialProfile struct {
	ID       int
	Name     string
	Material string
	Config   map[string]string
}

// PrintProfile carries quality/layout slicer settings. It is only usable on
// printers whose nozzle diameter and model match its declaration.
type PrintProfile struct {
	ID             int
	Name           string
	NozzleDiameter float64
	PrinterModel   string
	Config         map[string]string
}

// CompatibleWith reports whether this print profile can drive the given
// printer profile.
func (p *PrintProfile) CompatibleWith(pp *PrinterProfile) bool {
	return p.NozzleDiameter == pp.NozzleDiameter && p.PrinterModel == pp.PrinterModel
}

// SliceConfiguration bundles the profiles handed to the slicer for one job.
// PrintProfile may be nil when AutoPrintProfile is set; the slicer picks one.
// At most one configuration in the population carries the QuotingProfile flag;
// the repository clears the others when a new one is flagged.
type SliceConfiguration struct {
	ID               int
	PrinterProfile   *PrinterProfile
	MaterialProfile  *MaterialProfile
	PrintProfile     *PrintProfile
	AutoPrintProfile bool
	AutoSupport      bool
	QuotingProfile   bool
}
