// Package python parses Python manifests and resolves their dependencies
// against PyPI.
//
// # Manifests
//
//   - [Requirements]: requirements*.txt files, including -r includes
//     (cycles fail with [ErrCyclicInclude]), git+ URLs and per-line options
//   - [Pyproject]: pyproject.toml, both Poetry dependency tables and PEP 621
//     project.dependencies / optional-dependencies
//
// Single requirement strings go through [ParseRequirement], a PEP 508
// parser that reports malformed input instead of failing. Parsers never
// return errors for malformed content; bad lines are skipped.
//
// # Resolution
//
// [Resolver] fetches project metadata from a [Registry] (the PyPI client)
// and runs the license cascade of the license package on it. Projects PyPI
// does not know fall back to a repository search by name.
package python
