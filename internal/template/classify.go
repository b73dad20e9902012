package template

import "strings"

// ClassifyTopic derives a category from the topic's leading prefix.
// The mapping is a fixed table; anything unrecognized is UNKNOWN.
func ClassifyTopic(topic string) Category {
	switch {
	case strings.HasPrefix(topic, "ccu/"):
		return CategoryCCU
	case strings.HasPrefix(topic, "module/"):
		return CategoryModule
	case strings.HasPrefix(topic, "fts/"):
		return CategoryFTS
	case strings.HasPrefix(topic, "txt/"):
		return CategoryTXT
	case strings.Contains(strings.ToLower(topic), "node-red"):
		return CategoryNodeRED
	}
	return CategoryUnknown
}

// ClassifySubCategory derives a sub-category from tokens in the topic.
// More specific tokens are checked first so "ccu/order/response" lands
// on Response rather than Order.
func ClassifySubCategory(topic string) SubCategory {
	lower := strings.ToLower(topic)
	switch {
	case strings.Contains(lower, "response"):
		return SubCategoryResponse
	case strings.Contains(lower, "status"):
		return SubCategoryStatus
	case strings.Contains(lower, "connection"):
		return SubCategoryConnection
	case strings.Contains(lower, "factsheet"):
		return SubCategoryFactsheet
	case strings.Contains(lower, "instantaction"):
		return SubCategoryInstantAction
	case strings.Contains(lower, "flows"):
		return SubCategoryFlows
	case strings.Contains(lower, "dashboard"):
		return SubCategoryDashboard
	case strings.Contains(lower, "/ui"):
		return SubCategoryUI
	case strings.Contains(lower, "control"):
		return SubCategoryControl
	case strings.Contains(lower, "order"):
		return SubCategoryOrder
	case strings.Contains(lower, "state"):
		return SubCategoryState
	}
	return SubCategoryGeneral
}
