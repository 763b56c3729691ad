package texture

// PingPong is a two-slot pool of state textures. Passes read from the
// current slot and write into the other one; Swap flips the roles.
type PingPong struct {
	slots [2]*Texture2D
	cur   int
}

// NewPingPong builds the pair around an initial state. The second slot is
// allocated with the same shape.
func NewPingPong(initial *Texture2D) (*PingPong, error) {
	next, err := NewTexture2D(initial.Width, initial.Height)
	if err != nil {
		return nil, err
	}
	return &PingPong{slots: [2]*Texture2D{initial, next}}, nil
}

// Read is the state at tick t.
func (p *PingPong) Read() *Texture2D { return p.slots[p.cur] }

// Write is the destination for tick t+1.
func (p *PingPong) Write() *Texture2D { return p.slots[1-p.cur] }

// Swap makes the written texture current.
func (p *PingPong) Swap() { p.cur = 1 - p.cur }

// Current is the index of the read slot.
func (p *PingPong) Current() int { return p.cur }
