package song

import "fmt"

const (
	MaxRows     = 1024 // rows in one pattern
	MaxChannels = 128
	MaxPatterns = 4000
)

// A Pattern is a dense grid of cells indexed by row and channel.
// Its dimensions are fixed at creation; use Resize to get a pattern with a different row count.
type Pattern struct {
	Name string

	rows     int
	channels int
	cells    []Cell
}

// NewPattern creates an empty pattern.
func NewPattern(rows, channels int) (*Pattern, error) {
	if rows < 1 || rows > MaxRows {
		return nil, fmt.Errorf("pattern row count must be 1-%d, got %d", MaxRows, rows)
	}
	if channels < 1 || channels > MaxChannels {
		return nil, fmt.Errorf("pattern channel count must be 1-%d, got %d", MaxChannels, channels)
	}
	return &Pattern{
		rows:     rows,
		channels: channels,
		cells:    make([]Cell, rows*channels),
	}, nil
}

// A Grid is what pattern decoders write into: a stored Pattern, or a Shape when the
// pattern data is only being checked.
type Grid interface {
	Rows() int
	Channels() int
	Cell(row, channel int) *Cell
	WriteEffect(row, preferred int, cmd Command, param uint8) bool
}

// A Shape has the dimensions of a pattern but keeps no cells. Cell hands out a scratch
// cell for in-range indices, so a decoder walking into a Shape rejects exactly the
// writes it would reject on a real pattern. Each scratch cell is checked before it is
// reused, and Err reports the first one Validate would have rejected.
type Shape struct {
	rows     int
	channels int
	scratch  Cell
	row, ch  int
	bad      error
}

// NewShape validates the dimensions the way NewPattern does.
func NewShape(rows, channels int) (*Shape, error) {
	if rows < 1 || rows > MaxRows {
		return nil, fmt.Errorf("pattern row count must be 1-%d, got %d", MaxRows, rows)
	}
	if channels < 1 || channels > MaxChannels {
		return nil, fmt.Errorf("pattern channel count must be 1-%d, got %d", MaxChannels, channels)
	}
	return &Shape{rows: rows, channels: channels}, nil
}

func (s *Shape) Rows() int     { return s.rows }
func (s *Shape) Channels() int { return s.channels }

// Cell returns a cleared scratch cell, or nil if either index is out of range.
func (s *Shape) Cell(row, channel int) *Cell {
	if row < 0 || row >= s.rows || channel < 0 || channel >= s.channels {
		return nil
	}
	s.check()
	s.scratch = Cell{}
	s.row, s.ch = row, channel
	return &s.scratch
}

// WriteEffect reports whether row exists.
func (s *Shape) WriteEffect(row, _ int, _ Command, _ uint8) bool {
	return row >= 0 && row < s.rows
}

// Err returns an error for the first invalid cell written through the shape.
func (s *Shape) Err() error {
	s.check()
	return s.bad
}

func (s *Shape) check() {
	c := s.scratch
	if s.bad == nil && !c.isValid() {
		s.bad = fmt.Errorf("row %d channel %d: invalid cell %s", s.row, s.ch, c)
	}
}

// Rows returns the number of rows.
func (p *Pattern) Rows() int {
	return p.rows
}

// Channels returns the number of channels the pattern was created with.
func (p *Pattern) Channels() int {
	return p.channels
}

// Cell returns the cell at (row, channel), or nil if either index is out of range.
// Callers must check the result; an out of range write is a decoding error, never
// something to clamp.
func (p *Pattern) Cell(row, channel int) *Cell {
	if row < 0 || row >= p.rows || channel < 0 || channel >= p.channels {
		return nil
	}
	return &p.cells[row*p.channels+channel]
}

// Row returns the cells of one row, or nil if row is out of range.
func (p *Pattern) Row(row int) []Cell {
	if row < 0 || row >= p.rows {
		return nil
	}
	return p.cells[row*p.channels : (row+1)*p.channels]
}

// Resize returns a copy of the pattern with a different number of rows. Rows beyond the
// old size are empty; rows beyond the new size are dropped.
func (p *Pattern) Resize(rows int) (*Pattern, error) {
	np, err := NewPattern(rows, p.channels)
	if err != nil {
		return nil, err
	}
	np.Name = p.Name
	copy(np.cells, p.cells)
	return np, nil
}

// IsEmpty reports whether every cell in the pattern is empty.
func (p *Pattern) IsEmpty() bool {
	for _, c := range p.cells {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// WriteEffect places a command on a row, for fixups that add commands the format stored
// outside its pattern data (per-pattern tempo, break rows). The preferred channel is
// tried first, then every other channel with a free effect slot, then a free volume column
// if the command has an equivalent there. If the row is full, a global command replaces the
// first non-global effect found. It reports whether the command was written.
func (p *Pattern) WriteEffect(row, preferred int, cmd Command, param uint8) bool {
	cells := p.Row(row)
	if cells == nil {
		return false
	}
	order := make([]int, 0, p.channels)
	if preferred >= 0 && preferred < p.channels {
		order = append(order, preferred)
	}
	for ch := range p.channels {
		if ch != preferred {
			order = append(order, ch)
		}
	}
	for _, ch := range order {
		c := &cells[ch]
		if c.Command == cmd && c.Param == param {
			return true
		}
		if c.Command == CmdNone {
			c.SetEffect(cmd, param)
			return true
		}
	}
	if vc, v, ok := volumeEquivalent(cmd, param); ok {
		for _, ch := range order {
			if cells[ch].VolCmd == VolNone {
				cells[ch].SetVolume(vc, v)
				return true
			}
		}
	}
	if cmd.IsGlobal() {
		for _, ch := range order {
			if !cells[ch].Command.IsGlobal() {
				cells[ch].SetEffect(cmd, param)
				return true
			}
		}
	}
	return false
}
