package tools

import (
	"context"

	"github.com/eburon/callerpro/pkg/callcenter/agent"
	"github.com/eburon/callerpro/pkg/callcenter/crm"
)

// SearchListingsTool searches the CRM inventory.
type SearchListingsTool struct {
	BaseTool
	crm crm.Service
}

// NewSearchListingsTool creates a new SearchListingsTool
func NewSearchListingsTool(svc crm.Service) *SearchListingsTool {
	return &SearchListingsTool{
		BaseTool: NewBaseTool(agent.ToolSearchListings, "Search for property listings based on criteria"),
		crm:      svc,
	}
}

func (t *SearchListingsTool) Run(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var criteria crm.SearchCriteria
	criteria.Location, _ = args["location"].(string)
	criteria.Type, _ = args["type"].(string)
	if v, ok := args["price_min"].(float64); ok {
		criteria.PriceMin = &v
	}
	if v, ok := args["price_max"].(float64); ok {
		criteria.PriceMax = &v
	}
	if v, ok := args["bedrooms"].(int); ok {
		criteria.Bedrooms = &v
	}

	listings, err := t.crm.SearchListings(ctx, criteria)
	if err != nil {
		return nil, err
	}
	if listings == nil {
		listings = []crm.Listing{}
	}
	return map[string]interface{}{
		"count":    len(listings),
		"listings": listings,
	}, nil
}

// ScheduleViewingTool books a property viewing in the CRM.
type ScheduleViewingTool struct {
	BaseTool
	crm crm.Service
}

// NewScheduleViewingTool creates a new ScheduleViewingTool
func NewScheduleViewingTool(svc crm.Service) *ScheduleViewingTool {
	return &ScheduleViewingTool{
		BaseTool: NewBaseTool(agent.ToolScheduleViewing, "Schedule a viewing for a specific property"),
		crm:      svc,
	}
}

func (t *ScheduleViewingTool) Run(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	propertyID, _ := args["property_id"].(string)
	date, _ := args["date"].(string)
	clientName, _ := args["client_name"].(string)

	return t.crm.ScheduleViewing(ctx, propertyID, date, clientName)
}

// CRMTools returns the tool implementations for agent.CRMTools.
func CRMTools(svc crm.Service) []Tool {
	return []Tool{
		NewSearchListingsTool(svc),
		NewScheduleViewingTool(svc),
	}
}
