// Package conda parses conda environment files and resolves conda
// dependencies against channel index snapshots.
//
// [ParseEnvironment] splits an environment.yml into its channels, conda
// match specs and the nested pip list. [ParseMatchSpec] understands
// "channel::name<constraint>=build" as well as "name version build".
//
// [Resolver] searches the channels and platforms of an index.Config in
// order. Version matching is a plain substring test and candidates are
// ordered by string comparison, not by semantic version; see
// index.Snapshot.Lookup.
package conda
