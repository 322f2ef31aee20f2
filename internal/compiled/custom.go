package compiled

import (
	"github.com/danmuck/fracpack/internal/fracpack"
)

// Converter is the schema-driven JSON bridge as seen by custom handlers.
// Handlers use it to convert values of their representation type.
type Converter interface {
	Schema() *Schema
	// FracToJSON decodes the top-level encoding of id starting at *pos.
	FracToJSON(id TypeID, in *fracpack.Input, pos *uint32) (any, error)
	// JSONToFrac appends the top-level encoding of v as id.
	JSONToFrac(id TypeID, v any, w *fracpack.Writer) error
	IsEmptyContainer(id TypeID, v any) (bool, error)
}

// CustomHandler gives a representation type an alternate JSON form, such as
// text for a byte list. FracToJSON and JSONToFrac operate on the top-level
// encoding of repr.
type CustomHandler interface {
	Match(s *Schema, repr TypeID) bool
	FracToJSON(c Converter, repr TypeID, in *fracpack.Input, pos *uint32) (any, error)
	JSONToFrac(c Converter, repr TypeID, v any, w *fracpack.Writer) error
	IsEmptyContainer(c Converter, repr TypeID, v any) (bool, error)
}

// CustomTypes is the table of handlers consulted during compilation. It must
// not be modified once a schema has been compiled against it.
type CustomTypes struct {
	names    []string
	handlers []CustomHandler
	index    map[string]int
}

func NewCustomTypes() *CustomTypes {
	return &CustomTypes{index: make(map[string]int)}
}

// Insert registers h under name, replacing an earlier handler of that name.
func (c *CustomTypes) Insert(name string, h CustomHandler) {
	if i, ok := c.index[name]; ok {
		c.handlers[i] = h
		return
	}
	c.index[name] = len(c.handlers)
	c.names = append(c.names, name)
	c.handlers = append(c.handlers, h)
}

func (c *CustomTypes) Find(name string) (int, bool) {
	if c == nil {
		return 0, false
	}
	i, ok := c.index[name]
	return i, ok
}

func (c *CustomTypes) Handler(i int) CustomHandler {
	return c.handlers[i]
}

func (c *CustomTypes) Name(i int) string {
	return c.names[i]
}

func (c *CustomTypes) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Subset returns a table holding only the named handlers.
func (c *CustomTypes) Subset(names ...string) *CustomTypes {
	out := NewCustomTypes()
	for _, name := range names {
		if i, ok := c.Find(name); ok {
			out.Insert(name, c.handlers[i])
		}
	}
	return out
}
