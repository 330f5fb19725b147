package router

// GetRouteDocumentation describes the JSON API for the development docs endpoint
func GetRouteDocumentation() []map[string]any {
	nameParam := map[string]any{
		"name": "string (required) - Counter name in URL path, at most 100 characters; blank means \"default\"",
	}

	return []map[string]any{
		{
			"method":      "GET",
			"path":        "/api/v1/health",
			"description": "Database and cache health",
		},
		{
			"method":      "GET",
			"path":        "/api/v1/counters",
			"description": "List counters ordered by name",
			"parameters": map[string]any{
				"page":      "number (optional) - Query parameter, 1-based (default: 1)",
				"page_size": "number (optional) - Query parameter, 1..100 (default: 20)",
				"prefix":    "string (optional) - Query parameter, only names starting with prefix",
			},
		},
		{
			"method":      "GET",
			"path":        "/api/v1/counters/:name",
			"description": "Get the full counter record, creating it with value 0 if absent",
			"parameters":  nameParam,
		},
		{
			"method":      "GET",
			"path":        "/api/v1/counters/:name/value",
			"description": "Get the counter value, creating the counter with value 0 if absent",
			"parameters":  nameParam,
		},
		{
			"method":      "POST",
			"path":        "/api/v1/counters/:name/increment",
			"description": "Add one to the counter and return the new value",
			"parameters":  nameParam,
		},
		{
			"method":      "POST",
			"path":        "/api/v1/counters/:name/decrement",
			"description": "Subtract one from the counter and return the new value",
			"parameters":  nameParam,
		},
		{
			"method":      "POST",
			"path":        "/api/v1/counters/:name/reset",
			"description": "Set the counter to 0",
			"parameters":  nameParam,
		},
		{
			"method":      "GET",
			"path":        "/api/v1/admin/counters/export",
			"description": "Download every counter as an XLSX workbook",
			"parameters": map[string]any{
				"X-API-Key": "string (required) - Header, one of ADMIN_API_KEYS",
			},
		},
	}
}
