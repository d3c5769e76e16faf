package dataverse

// DefaultTop is the record limit applied when a caller does not supply one.
const DefaultTop = 10

// QueryOptions configures a collection query using OData conventions.
type QueryOptions struct {
	// Select lists the fields to project ($select). Empty means all fields.
	Select []string

	// Filter is a raw OData filter expression ($filter), passed through
	// verbatim. Empty means no filter.
	Filter string

	// Top limits the number of records returned ($top). Zero means the
	// parameter is omitted entirely and the service default applies.
	Top int
}

// QueryResult holds one page of records from a collection query.
type QueryResult struct {
	// Records is the "value" array from the OData response, verbatim.
	Records []map[string]any

	// Count is the number of records in this page.
	Count int
}

// CreateResult identifies a newly created record.
type CreateResult struct {
	// ID is the record GUID extracted from the OData-EntityId response
	// header. Empty when the service did not return the header.
	ID string

	// URL is the full OData-EntityId header value. Empty when absent.
	URL string
}

// tokenResponse is the JSON body returned by the OAuth2 token endpoint.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// queryResponse is the JSON body returned by a collection GET.
type queryResponse struct {
	Value []map[string]any `json:"value"`
}
