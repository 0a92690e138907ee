package domain

// PriceLine is a single (unit price, quantity) input to the pricing calculator.
type PriceLine struct {
	UnitPrice int64
	Quantity  int
}

// PricingBreakdown captures the monetary results of pricing a set of lines.
type PricingBreakdown struct {
	Subtotal int64
	Tax      int64
	Shipping int64
	Discount int64
	Total    int64
}

// PricingPolicy holds the flat-rate parameters applied to every order.
type PricingPolicy struct {
	// TaxRateBasisPoints is the tax rate in hundredths of a percent (1800 = 18%).
	TaxRateBasisPoints int64
	// FreeShippingThreshold is the subtotal that must be exceeded for free shipping.
	FreeShippingThreshold int64
	ShippingFee           int64
}

// DefaultPricingPolicy returns the marketplace's standard flat-rate policy.
func DefaultPricingPolicy() PricingPolicy {
	return PricingPolicy{
		TaxRateBasisPoints:    1800,
		FreeShippingThreshold: 1000,
		ShippingFee:           100,
	}
}
