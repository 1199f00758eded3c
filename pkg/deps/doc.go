// Package deps defines the shared model of superbom: declared dependencies,
// resolved BOM entries, and the parser and resolver interfaces implemented by
// the ecosystem packages.
//
// # Overview
//
// A BOM run has three stages:
//
//  1. A [ManifestParser] reads a manifest into ordered [DependencySpec] values
//  2. A [Resolver] turns each spec into an [Entry] (version, license, validation)
//  3. The bom package collects the entries per manifest
//
// The ecosystem implementations live in subpackages:
//
//   - [github.com/matzehuels/superbom/pkg/deps/conda]: environment.yml files and
//     conda channel lookups
//   - [github.com/matzehuels/superbom/pkg/deps/python]: requirements files,
//     pyproject.toml (Poetry and PEP 621) and PyPI lookups
//
// # Failure model
//
// Parsers are tolerant: a malformed line or document yields fewer
// dependencies, never an error. Resolvers never fail either; a dependency no
// source knows about becomes an [Unresolved] entry carrying the requested
// name, the stripped constraint (or [NotAvailable]) and [NoLicense].
package deps
