package config

import "fmt"

// Validate checks configuration values. It returns sentinel errors that
// can be matched with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY (get one at https://ai.google.dev/gemini-api/docs/api-key)",
			ErrMissingAPIKey)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModel)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidModel)
	}

	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d with chunk_size %d",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}

	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidTopK, c.TopK)
	}

	if c.MaxContextLength < 100 {
		return fmt.Errorf("%w: must be at least 100, got %d", ErrInvalidContextLength, c.MaxContextLength)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: must be positive, got %v", ErrInvalidTimeout, c.RequestTimeout)
	}

	switch c.StoreDriver {
	case DriverSQLite:
		if c.StorePath == "" {
			return fmt.Errorf("%w: store_path cannot be empty for the sqlite driver", ErrInvalidStorePath)
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: set database_url (or DATABASE_URL) for the postgres driver",
				ErrMissingDatabaseURL)
		}
	default:
		return fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidStoreDriver, c.StoreDriver, DriverSQLite, DriverPostgres)
	}

	return nil
}
