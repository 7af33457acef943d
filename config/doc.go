// Package config loads service configuration with Viper.
//
// A YAML (or JSON) file is read first, then a .env file is loaded with
// godotenv, and finally environment variables carrying the service prefix
// override individual keys:
//
//	RECIPEFLOW_ENGINE_MAX_PARALLEL=8  ->  engine.max_parallel
//
// Call LoadConfig and then ApplyDefaults / Validate on the result.
package config
