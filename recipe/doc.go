// Package recipe defines the recipe graph model and the execution records
// produced when a recipe runs.
//
// A Recipe is a set of typed Nodes connected by Edges. Generation nodes call
// a capability provider; data_processing nodes transform upstream outputs
// locally. Recipes are declarative documents and can be loaded from YAML or
// JSON with Parse, LoadFile or a FileLoader.
package recipe
