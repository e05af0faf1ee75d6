package raster

// Collection is a filtered image collection, evaluated by the backend.
// Methods return new values; the receiver is never modified.
type Collection struct {
	ID      string   `json:"id"`
	Filters []Filter `json:"filters,omitempty"`
	Bands   []string `json:"bands,omitempty"`
}

// Filter narrows a collection.
type Filter struct {
	Kind     string   `json:"kind"`
	Region   *Region  `json:"region,omitempty"`
	Window   *Window  `json:"window,omitempty"`
	Property string   `json:"property,omitempty"`
	Value    *float64 `json:"value,omitempty"`
}

// Filter kinds.
const (
	FilterBounds   = "bounds"
	FilterDate     = "date"
	FilterLessThan = "lt"
)

// NewCollection references a catalog collection by ID.
func NewCollection(id string) Collection {
	return Collection{ID: id}
}

func (c Collection) with(f Filter) Collection {
	out := c
	out.Filters = append(append([]Filter{}, c.Filters...), f)
	return out
}

// FilterBounds keeps images intersecting the region.
func (c Collection) FilterBounds(r Region) Collection {
	return c.with(Filter{Kind: FilterBounds, Region: &r})
}

// FilterDate keeps images acquired inside the window.
func (c Collection) FilterDate(w Window) Collection {
	return c.with(Filter{Kind: FilterDate, Window: &w})
}

// FilterLessThan keeps images whose metadata property is below value.
func (c Collection) FilterLessThan(property string, value float64) Collection {
	return c.with(Filter{Kind: FilterLessThan, Property: property, Value: &value})
}

// Select restricts every image in the collection to the named bands.
func (c Collection) Select(bands ...string) Collection {
	out := c
	out.Filters = append([]Filter{}, c.Filters...)
	out.Bands = append([]string{}, bands...)
	return out
}

// Median composites the collection per pixel with the median.
func (c Collection) Median() Image {
	return Image{Op: OpMedian, Collection: &c}
}

// Mode composites the collection per pixel with the most common value.
func (c Collection) Mode() Image {
	return Image{Op: OpMode, Collection: &c}
}

// Image operations understood by the backend.
const (
	OpMedian       = "median"
	OpMode         = "mode"
	OpEach         = "each"
	OpPixelArea    = "pixelArea"
	OpNormDiff     = "normalizedDifference"
	OpRename       = "rename"
	OpSelect       = "select"
	OpGt           = "gt"
	OpEq           = "eq"
	OpAnd          = "and"
	OpFocalMax     = "focalMax"
	OpClip         = "clip"
	OpMultiply     = "multiply"
	OpUpdateMask   = "updateMask"
	KernelCircle   = "circle"
	KernelUnitsPix = "pixels"
)

// Image is a raster expression node.
type Image struct {
	Op         string         `json:"op"`
	Collection *Collection    `json:"collection,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Inputs     []Image        `json:"inputs,omitempty"`
}

// Each stands for the current image when an expression is mapped over a
// collection.
func Each() Image {
	return Image{Op: OpEach}
}

// PixelArea is an image whose value is the area of each pixel in m².
func PixelArea() Image {
	return Image{Op: OpPixelArea}
}

func (i Image) apply(op string, args map[string]any, others ...Image) Image {
	inputs := make([]Image, 0, 1+len(others))
	inputs = append(inputs, i)
	inputs = append(inputs, others...)
	return Image{Op: op, Args: args, Inputs: inputs}
}

// NormalizedDifference computes (a-b)/(a+b) over two bands.
func (i Image) NormalizedDifference(a, b string) Image {
	return i.apply(OpNormDiff, map[string]any{"bands": []string{a, b}})
}

// Rename sets the output band name.
func (i Image) Rename(name string) Image {
	return i.apply(OpRename, map[string]any{"name": name})
}

// Select picks a single band.
func (i Image) Select(band string) Image {
	return i.apply(OpSelect, map[string]any{"band": band})
}

// Gt yields 1 where the pixel value is greater than v.
func (i Image) Gt(v float64) Image {
	return i.apply(OpGt, map[string]any{"value": v})
}

// GtImage yields 1 where the pixel is greater than the same pixel in other.
func (i Image) GtImage(other Image) Image {
	return i.apply(OpGt, nil, other)
}

// Eq yields 1 where the pixel value equals v.
func (i Image) Eq(v float64) Image {
	return i.apply(OpEq, map[string]any{"value": v})
}

// And is the pixelwise logical conjunction.
func (i Image) And(other Image) Image {
	return i.apply(OpAnd, nil, other)
}

// FocalMax dilates the image with a circular kernel of radius pixels.
func (i Image) FocalMax(radius int) Image {
	return i.apply(OpFocalMax, map[string]any{
		"radius": radius,
		"kernel": KernelCircle,
		"units":  KernelUnitsPix,
	})
}

// Clip restricts the image footprint to the region.
func (i Image) Clip(r Region) Image {
	return i.apply(OpClip, map[string]any{"region": r})
}

// Multiply is the pixelwise product.
func (i Image) Multiply(other Image) Image {
	return i.apply(OpMultiply, nil, other)
}

// UpdateMask masks out pixels where mask is zero.
func (i Image) UpdateMask(mask Image) Image {
	return i.apply(OpUpdateMask, nil, mask)
}
