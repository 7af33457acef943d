// Package version reports the recipeflow build.
//
// Values come from -ldflags when set and from the module build info
// otherwise:
//
//	go build -ldflags "-X github.com/kbukum/recipeflow/version.Version=1.2.0" ./cmd/recipeflow
package version
