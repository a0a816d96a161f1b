package layout

// Block is a run of words that belong together, with its bounding box in
// page pixels.
type Block struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Text     string  `json:"text"`
	Selected bool    `json:"selected"`
}

// SameBox reports whether both blocks cover the same integer rectangle.
func (b Block) SameBox(o Block) bool {
	return int(b.X) == int(o.X) && int(b.Y) == int(o.Y) &&
		int(b.Width) == int(o.Width) && int(b.Height) == int(o.Height)
}

func (b Block) right() float64  { return b.X + b.Width }
func (b Block) bottom() float64 { return b.Y + b.Height }
