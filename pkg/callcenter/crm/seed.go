package crm

// DefaultListings is the demo inventory of Eburon Estates.
func DefaultListings() []Listing {
	return []Listing{
		{ID: "EB-1001", Title: "Sea-view penthouse", Location: "Knokke-Heist", Type: "apartment", Price: 2450000, Bedrooms: 3,
			Description: "Top-floor penthouse on the Zeedijk with a wraparound terrace."},
		{ID: "EB-1002", Title: "Villa with garden and pool", Location: "Sint-Martens-Latem", Type: "house", Price: 3100000, Bedrooms: 5,
			Description: "Modernist villa on a wooded plot near the Leie."},
		{ID: "EB-1003", Title: "Loft in 't Zuid", Location: "Antwerp", Type: "apartment", Price: 865000, Bedrooms: 2,
			Description: "Converted warehouse loft with a home office."},
		{ID: "EB-1004", Title: "Townhouse on the Coupure", Location: "Ghent", Type: "house", Price: 1275000, Bedrooms: 4},
		{ID: "EB-2001", Title: "Grade A office floor, 5,000 sq ft", Location: "Brussels", Type: "commercial", Price: 1850000, Bedrooms: 0,
			Description: "Open-plan floor in the Leopold quarter, available Tuesday."},
		{ID: "EB-2002", Title: "Logistics warehouse", Location: "Antwerp", Type: "commercial", Price: 4200000, Bedrooms: 0,
			Description: "12 loading docks, ten minutes from the port."},
		{ID: "EB-3001", Title: "Building plot", Location: "Leuven", Type: "land", Price: 395000, Bedrooms: 0},
	}
}
