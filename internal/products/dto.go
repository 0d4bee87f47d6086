package product

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/portal-crm-backend/pkg/db/models"
)

// ProductDTO is the catalog entry used to prefill a quote item.
type ProductDTO struct {
	ID          uuid.UUID `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	UnitPrice   string    `json:"unit_price"`
	TaxPercent  string    `json:"tax_percent"`
}

func newProductDTO(p models.Product) ProductDTO {
	return ProductDTO{
		ID:          p.ID,
		SKU:         p.SKU,
		Name:        p.Name,
		Description: p.Description,
		UnitPrice:   p.UnitPrice.StringFixed(2),
		TaxPercent:  p.TaxPercent.StringFixed(2),
	}
}
