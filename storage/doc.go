// Package storage stores side artifacts written by data_processing nodes
// behind a pluggable backend.
//
// # Backends
//
//   - storage/local: local filesystem, for development and tests
//   - storage/s3: Amazon S3 and S3-compatible services
//
// Backends register themselves on import:
//
//	import _ "github.com/kbukum/recipeflow/storage/s3"
//
//	st, err := storage.New(storage.Config{Provider: "s3", Bucket: "artifacts"}, log)
//
// # Configuration
//
//	storage:
//	  provider: "s3"
//	  bucket: "artifacts"
//	  region: "us-east-1"
//	  prefix: "recipes"
package storage
