package agent

const (
	ToolSearchListings  = "real_estate_search_listings"
	ToolScheduleViewing = "real_estate_schedule_viewing"
)

// PropertyTypes enumerates the listing categories the CRM understands.
var PropertyTypes = []string{"house", "apartment", "commercial", "land"}

// CRMTools returns the real-estate CRM tool declarations.
func CRMTools() []ToolDeclaration {
	return []ToolDeclaration{
		{
			Name:        ToolSearchListings,
			Description: "Search for property listings based on criteria.",
			Properties: map[string]Parameter{
				"location":  {Type: ParamString, Description: "City or neighborhood."},
				"price_min": {Type: ParamNumber, Description: "Minimum price."},
				"price_max": {Type: ParamNumber, Description: "Maximum price."},
				"bedrooms":  {Type: ParamInteger, Description: "Minimum bedrooms."},
				"type":      {Type: ParamString, Enum: append([]string(nil), PropertyTypes...)},
			},
		},
		{
			Name:        ToolScheduleViewing,
			Description: "Schedule a viewing for a specific property.",
			Properties: map[string]Parameter{
				"property_id": {Type: ParamString, Description: "ID of the property."},
				"date":        {Type: ParamString, Description: "Date and time of viewing (ISO string)."},
				"client_name": {Type: ParamString, Description: "Name of the client."},
			},
			Required: []string{"property_id", "date", "client_name"},
		},
	}
}
