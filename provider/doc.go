// Package provider defines the capability provider contract used by the
// action dispatcher, plus a registry for swappable backends.
//
// A provider implements text, image and video generation. Capabilities a
// backend cannot serve return an UNSUPPORTED_CAPABILITY error wrapping
// ErrUnsupported; embed Unimplemented to get those defaults for free.
//
// # Middleware
//
// Middleware wraps a Capability with cross-cutting behavior. Use Chain to
// compose several:
//
//	wrap := provider.Chain(
//	    provider.WithLogging(log),
//	    provider.WithTracing(),
//	    provider.WithMetrics(metrics),
//	    provider.WithResilience(cfg),
//	)
//	reg := provider.NewRegistry(wrap)
//
// # Usage
//
//	reg.RegisterFactory(ollama.ProviderName, ollama.Factory())
//	reg.Configure(ollama.ProviderName, map[string]any{"base_url": url})
//	p, err := reg.Get(ollama.ProviderName)
package provider
