package dynamo

// Config holds configuration for the DynamoDB adapter.
type Config struct {
	// DocumentTable is the name of the documents table.
	// Key schema: bucket (HASH, S), id (RANGE, S).
	// Default: "arbor_documents"
	DocumentTable string

	// CatalogTable is the name of the bucket catalog table.
	// Key schema: bucket (HASH, S).
	// Default: "arbor_buckets"
	CatalogTable string

	// MaxRetries bounds the optimistic read-and-write attempts made when a
	// nested field cannot be set with a single UpdateItem (missing
	// intermediate maps, list indices).
	// Default: 5
	// Max: 32
	MaxRetries int
}

// DefaultConfig returns the default table names and retry budget.
func DefaultConfig() Config {
	return Config{
		DocumentTable: "arbor_documents",
		CatalogTable:  "arbor_buckets",
		MaxRetries:    5,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.DocumentTable == "" {
		c.DocumentTable = "arbor_documents"
	}
	if c.CatalogTable == "" {
		c.CatalogTable = "arbor_buckets"
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = 5
	}
	if c.MaxRetries > 32 {
		c.MaxRetries = 32
	}
}
