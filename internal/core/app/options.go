package app

import "jspack/internal/core/config"

// OptionsFromConfig maps the [resolve] and [bundle] sections onto
// BundleOptions.
func OptionsFromConfig(cfg *config.Config) BundleOptions {
	aliases := make(map[string]string, len(cfg.Resolve.Aliases))
	for k, v := range cfg.Resolve.Aliases {
		aliases[k] = v
	}
	return BundleOptions{
		Minify:           cfg.Bundle.Minify,
		Sourcemap:        cfg.Bundle.Sourcemap,
		ScopeHoist:       cfg.Bundle.ScopeHoistEnabled(),
		Conditions:       append([]string(nil), cfg.Resolve.Conditions...),
		Extensions:       append([]string(nil), cfg.Resolve.Extensions...),
		MainFields:       append([]string(nil), cfg.Resolve.MainFields...),
		UnresolvedPolicy: cfg.Bundle.Unresolved,
		Platform:         cfg.Bundle.Platform,
		External:         append([]string(nil), cfg.Bundle.External...),
		Aliases:          aliases,
		PreserveSymlinks: cfg.Resolve.PreserveSymlinks,
		Format:           cfg.Bundle.Format,
		GlobalName:       cfg.Bundle.GlobalName,
	}
}
