package cart

// ValidateCheckout checks a checkout request against the cart's stored lines.
//
// The request must repeat the cart's contents exactly: every requested product
// has to be present in the cart, and the requested quantity has to match the
// stored quantity. This is an anti-tampering check, not a convenience default;
// a mismatch is rejected rather than silently adjusted.
func ValidateCheckout(lines []Line, items []Item) error {
	if len(lines) == 0 {
		return &FieldError{Field: "items", Message: "no products in the submitted data"}
	}

	byProduct := make(map[int64]Item, len(items))
	for _, it := range items {
		byProduct[it.ProductID] = it
	}

	for _, line := range lines {
		stored, ok := byProduct[line.ProductID]
		if !ok {
			return &FieldError{
				Field:   "product",
				Message: "only products registered in the cart can be ordered",
			}
		}
		if line.Quantity != stored.Quantity {
			return &FieldError{
				Field:   "quantity",
				Message: "quantity must match the quantity registered in the cart",
			}
		}
	}
	return nil
}
