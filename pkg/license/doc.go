// Package license resolves the license of a package from its registry
// metadata.
//
// Registry records are first mapped to a [Metadata] value ([CondaMetadata],
// [PyPIMetadata]). A [Resolver] then walks a fixed cascade of candidate
// sources (declared field, trove classifier, linked repository, repository
// search) and checks each candidate with an [Oracle]. [SPDXOracle] is the
// production oracle: it maps common free-text spellings to SPDX identifiers,
// validates expressions against the SPDX license list and optionally
// enforces an allow-list.
//
// Repository lookups go through a [RepoHost]; [GitHubHost] implements it
// with the GitHub API and falls back to [IdentifyText] when GitHub cannot
// classify a license file.
package license
