package flow

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/orders"
)

var formatCOP = orders.FormatCOP

// Product is one catalog entry. Prices are in Colombian pesos.
type Product struct {
	Name    string   `json:"nombre"`
	Unit    string   `json:"unidad"`
	Price   int64    `json:"precio"`
	Aliases []string `json:"alias,omitempty"`
}

// Catalog is the list of products customers can order from the bot.
type Catalog struct {
	Products []Product `json:"productos"`
	index    map[string]int
}

// maxLineQuantity caps a single order line.
const maxLineQuantity = 999

// DefaultCatalog returns the built-in product list.
func DefaultCatalog() *Catalog {
	return NewCatalog([]Product{
		{Name: "Pollo entero", Unit: "unidad", Price: 18500, Aliases: []string{"pollo", "pollos enteros"}},
		{Name: "Pechuga", Unit: "kg", Price: 16900, Aliases: []string{"pechugas"}},
		{Name: "Muslos", Unit: "kg", Price: 12900, Aliases: []string{"muslo", "pernil", "perniles"}},
		{Name: "Alas", Unit: "kg", Price: 11500, Aliases: []string{"ala", "alitas"}},
		{Name: "Menudencias", Unit: "kg", Price: 6500, Aliases: []string{"menudencia", "visceras"}},
		{Name: "Huevos AA x30", Unit: "panal", Price: 17500, Aliases: []string{"huevos", "panal de huevos", "huevo"}},
		{Name: "Carne molida de res", Unit: "kg", Price: 22900, Aliases: []string{"carne molida", "molida"}},
		{Name: "Costilla de cerdo", Unit: "kg", Price: 19900, Aliases: []string{"costilla", "costillas"}},
	})
}

// NewCatalog indexes products by folded name and alias.
func NewCatalog(products []Product) *Catalog {
	c := &Catalog{Products: products}
	c.reindex()
	return c
}

func (c *Catalog) reindex() {
	c.index = make(map[string]int)
	for i, p := range c.Products {
		c.index[fold(p.Name)] = i
		for _, a := range p.Aliases {
			if _, taken := c.index[fold(a)]; !taken {
				c.index[fold(a)] = i
			}
		}
	}
}

// LoadCatalog reads a JSON catalog ({"productos": [...]}) from path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	if len(c.Products) == 0 {
		return nil, fmt.Errorf("catalog %s has no products", path)
	}
	for _, p := range c.Products {
		if strings.TrimSpace(p.Name) == "" || p.Price <= 0 {
			return nil, fmt.Errorf("catalog %s: invalid product %q", path, p.Name)
		}
	}
	c.reindex()
	return &c, nil
}

// Lookup finds a product by name or alias, ignoring case and accents.
func (c *Catalog) Lookup(name string) (Product, bool) {
	i, ok := c.index[fold(name)]
	if !ok {
		return Product{}, false
	}
	return c.Products[i], true
}

// Format renders the catalog with prices for a WhatsApp message.
func (c *Catalog) Format() string {
	var b strings.Builder
	b.WriteString("📋 *Catálogo Avellano*\n\n")
	for _, p := range c.Products {
		fmt.Fprintf(&b, "• %s: %s / %s\n", p.Name, formatCOP(p.Price), p.Unit)
	}
	return strings.TrimRight(b.String(), "\n")
}

var (
	qtyFirst = regexp.MustCompile(`^(\d+)\s*(?:x\s+)?(.+)$`)
	qtyLast  = regexp.MustCompile(`^(.+?)\s*(?:x\s*)?(\d+)$`)
)

// LineError describes why an order line was rejected.
type LineError struct {
	Line   string
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("línea %q: %s", e.Line, e.Reason)
}

// ParseLines parses one product per line (or comma) in either "2 pollo
// entero" or "pollo entero x2" form. Repeated products are merged.
func (c *Catalog) ParseLines(text string) ([]models.OrderLine, error) {
	var out []models.OrderLine
	pos := make(map[string]int)
	for _, raw := range strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == ',' || r == ';' }) {
		line := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(raw), "-•*"))
		if line == "" {
			continue
		}
		name, qty, ok := splitQuantity(line)
		if !ok {
			return nil, &LineError{Line: line, Reason: "indica la cantidad, por ejemplo: 2 pollo entero"}
		}
		if qty <= 0 || qty > maxLineQuantity {
			return nil, &LineError{Line: line, Reason: fmt.Sprintf("la cantidad debe estar entre 1 y %d", maxLineQuantity)}
		}
		p, found := c.Lookup(name)
		if !found {
			return nil, &LineError{Line: line, Reason: "no encontramos ese producto en el catálogo"}
		}
		if i, dup := pos[p.Name]; dup {
			out[i].Quantity += qty
			continue
		}
		pos[p.Name] = len(out)
		out = append(out, models.OrderLine{Product: p.Name, Quantity: qty, UnitPrice: p.Price})
	}
	if len(out) == 0 {
		return nil, &LineError{Line: strings.TrimSpace(text), Reason: "no encontramos productos"}
	}
	return out, nil
}

func splitQuantity(line string) (string, int, bool) {
	if m := qtyFirst.FindStringSubmatch(line); m != nil {
		n, err := strconv.Atoi(m[1])
		return strings.TrimSpace(m[2]), n, err == nil
	}
	if m := qtyLast.FindStringSubmatch(line); m != nil {
		n, err := strconv.Atoi(m[2])
		return strings.TrimSpace(m[1]), n, err == nil
	}
	return "", 0, false
}

// fold lower-cases s, strips accents and collapses inner whitespace.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		out = strings.ToLower(s)
	}
	return strings.Join(strings.Fields(out), " ")
}
