// Package pledge holds the append-only catalog of pledge definitions.
package pledge

// Pledge is the text an account signs to earn the badge with the same id.
type Pledge struct {
	// ID is assigned sequentially from 0 and never reused.
	ID uint64 `json:"id"`

	// Content is the exact text that must be signed.
	Content string `json:"content"`

	// URI is the display locator for the pledge metadata.
	URI string `json:"uri"`
}

// IsZero reports whether p is the placeholder returned for unknown ids.
func (p Pledge) IsZero() bool {
	return p.Content == "" && p.URI == ""
}

// Catalog stores pledges by id.
// It is not safe for concurrent use; callers serialize access.
type Catalog struct {
	pledges []Pledge
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Add appends a pledge and returns its id.
func (c *Catalog) Add(uri, content string) uint64 {
	id := uint64(len(c.pledges))
	c.pledges = append(c.pledges, Pledge{ID: id, Content: content, URI: uri})
	return id
}

// Get returns the pledge with the given id, or a Pledge carrying only the id
// if it was never added.
func (c *Catalog) Get(id uint64) Pledge {
	if id >= uint64(len(c.pledges)) {
		return Pledge{ID: id}
	}
	return c.pledges[id]
}

// Exists reports whether id has been added.
func (c *Catalog) Exists(id uint64) bool {
	return id < uint64(len(c.pledges))
}

// Len returns the number of pledges, which is also the next id.
func (c *Catalog) Len() uint64 {
	return uint64(len(c.pledges))
}

// List returns a copy of all pledges in id order.
func (c *Catalog) List() []Pledge {
	out := make([]Pledge, len(c.pledges))
	copy(out, c.pledges)
	return out
}
