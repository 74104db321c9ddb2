// Package catalog loads product catalogs from JSON files.
package catalog

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/voucher-engine/internal/domain/product"
)

type entry struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Image    struct {
		Thumbnail string `json:"thumbnail"`
		Mobile    string `json:"mobile"`
		Tablet    string `json:"tablet"`
		Desktop   string `json:"desktop"`
	} `json:"image"`
}

// Load reads a JSON array of products from path.
func Load(path string) ([]product.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog")
	}
	return Parse(data)
}

// Parse decodes a JSON array of products. Every product needs an id, a name
// and a non-negative price, and ids must be unique.
func Parse(data []byte) ([]product.Product, error) {
	var entries []entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrap(err, "parse catalog")
	}

	seen := make(map[string]struct{}, len(entries))
	products := make([]product.Product, 0, len(entries))
	for i, e := range entries {
		switch {
		case strings.TrimSpace(e.ID) == "":
			return nil, errors.Errorf("product #%d: empty id", i)
		case strings.TrimSpace(e.Name) == "":
			return nil, errors.Errorf("product %q: empty name", e.ID)
		case e.Price.IsNegative():
			return nil, errors.Errorf("product %q: negative price", e.ID)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, errors.Errorf("product %q: duplicate id", e.ID)
		}
		seen[e.ID] = struct{}{}

		products = append(products, product.Product{
			ID:       e.ID,
			Name:     e.Name,
			Price:    e.Price.Round(2),
			Category: e.Category,
			Image: product.Image{
				Thumbnail: e.Image.Thumbnail,
				Mobile:    e.Image.Mobile,
				Tablet:    e.Image.Tablet,
				Desktop:   e.Image.Desktop,
			},
		})
	}
	return products, nil
}
