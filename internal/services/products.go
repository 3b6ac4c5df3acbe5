package services

// Product describes what a subscription product entitles a family to
type Product struct {
	ProductID             string
	NumberOfFamilyMembers int
	NumberOfDogs          int
}

// ProductCatalog resolves product ids to entitlements
type ProductCatalog interface {
	Lookup(productID string) (Product, bool)
}

// StaticCatalog is an in-memory catalog keyed by product id
type StaticCatalog map[string]Product

// Lookup implements ProductCatalog
func (c StaticCatalog) Lookup(productID string) (Product, bool) {
	p, ok := c[productID]
	return p, ok
}

// DefaultCatalog lists the subscription products sold in the app
func DefaultCatalog() StaticCatalog {
	products := []Product{
		{ProductID: "com.jonathanxakellis.hound.twofamilymembers.onemonth", NumberOfFamilyMembers: 2, NumberOfDogs: 2},
		{ProductID: "com.jonathanxakellis.hound.fourfamilymembers.onemonth", NumberOfFamilyMembers: 4, NumberOfDogs: 4},
		{ProductID: "com.jonathanxakellis.hound.sixfamilymembers.onemonth", NumberOfFamilyMembers: 6, NumberOfDogs: 6},
		{ProductID: "com.jonathanxakellis.hound.tenfamilymembers.onemonth", NumberOfFamilyMembers: 10, NumberOfDogs: 10},
		{ProductID: "com.jonathanxakellis.hound.sixfamilymembers.sixmonth", NumberOfFamilyMembers: 6, NumberOfDogs: 6},
		{ProductID: "com.jonathanxakellis.hound.sixfamilymembers.oneyear", NumberOfFamilyMembers: 6, NumberOfDogs: 6},
	}

	catalog := make(StaticCatalog, len(products))
	for _, p := range products {
		catalog[p.ProductID] = p
	}
	return catalog
}
