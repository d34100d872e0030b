// Package catalog loads the read-only product list offered by the bot.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/m3rciful/shopbot/internal/order"
)

// ErrUnknownProduct is returned by Lookup for keys not in the catalog.
var ErrUnknownProduct = errors.New("catalog: unknown product")

var keyPattern = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)

// Product is one catalog entry.
type Product struct {
	Key         string
	Name        string
	Price       decimal.Decimal
	Description string
	// Link is revealed to the buyer once the order is approved.
	Link string
	// Image is an optional local path or URL shown on the product card.
	Image string
}

// Snapshot copies the fields stored with an order.
func (p Product) Snapshot() order.Product {
	return order.Product{Key: p.Key, Name: p.Name, Price: p.Price, Link: p.Link}
}

// Catalog is an ordered, immutable set of products.
type Catalog struct {
	products []Product
	byKey    map[string]int
}

type fileProduct struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	Price       string `yaml:"price"`
	Description string `yaml:"description"`
	Link        string `yaml:"link"`
	Image       string `yaml:"image"`
}

type file struct {
	Products []fileProduct `yaml:"products"`
}

// Load reads a catalog YAML file.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a catalog document. Keys must be unique and short enough to
// fit in a callback payload.
func Parse(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var doc file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	products := make([]Product, 0, len(doc.Products))
	for i, fp := range doc.Products {
		p, err := fp.product()
		if err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i+1, err)
		}
		products = append(products, p)
	}
	return New(products)
}

func (fp fileProduct) product() (Product, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(fp.Price))
	if err != nil {
		return Product{}, fmt.Errorf("product %q: invalid price %q", fp.Key, fp.Price)
	}
	return Product{
		Key:         strings.TrimSpace(fp.Key),
		Name:        strings.TrimSpace(fp.Name),
		Price:       price,
		Description: strings.TrimSpace(fp.Description),
		Link:        strings.TrimSpace(fp.Link),
		Image:       strings.TrimSpace(fp.Image),
	}, nil
}

// New validates products and builds a Catalog preserving their order.
func New(products []Product) (*Catalog, error) {
	c := &Catalog{
		products: make([]Product, 0, len(products)),
		byKey:    make(map[string]int, len(products)),
	}
	for _, p := range products {
		switch {
		case !keyPattern.MatchString(p.Key):
			return nil, fmt.Errorf("product key %q must match %s", p.Key, keyPattern)
		case p.Name == "":
			return nil, fmt.Errorf("product %q: name is required", p.Key)
		case p.Price.IsNegative():
			return nil, fmt.Errorf("product %q: price must not be negative", p.Key)
		}
		if _, dup := c.byKey[p.Key]; dup {
			return nil, fmt.Errorf("duplicate product key %q", p.Key)
		}
		c.byKey[p.Key] = len(c.products)
		c.products = append(c.products, p)
	}
	return c, nil
}

// Products returns the products in file order.
func (c *Catalog) Products() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// Lookup returns the product registered under key.
func (c *Catalog) Lookup(key string) (Product, error) {
	i, ok := c.byKey[key]
	if !ok {
		return Product{}, fmt.Errorf("%w: %q", ErrUnknownProduct, key)
	}
	return c.products[i], nil
}

// Len returns the number of products.
func (c *Catalog) Len() int { return len(c.products) }
