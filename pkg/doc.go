// Package pkg provides the libraries behind superbom, a license bill of
// materials generator for Python projects.
//
// # Overview
//
// superbom reads dependency manifests, resolves every declared dependency to
// a version and a license, and checks each license against an SPDX policy.
// The pkg directory is organized as follows:
//
//  1. [deps] - Shared model and the per-ecosystem parsers and resolvers
//     ([deps/conda], [deps/python])
//  2. [index] - Conda package index snapshots cached in memory and on disk
//  3. [license] - The license cascade and the SPDX oracle
//  4. [bom] - Manifest discovery and report assembly
//  5. [integrations] - Registry clients (PyPI, GitHub, conda channels)
//  6. [cache] - HTTP response cache backends (file, Redis, MongoDB)
//
// # Architecture
//
// The data flow of one run:
//
//	environment.yml / requirements.txt / pyproject.toml
//	         ↓
//	    [deps/conda], [deps/python] parsers (DependencySpec list)
//	         ↓
//	    resolvers (index snapshots, PyPI metadata)
//	         ↓
//	    [license] cascade (declared → classifier → repository)
//	         ↓
//	    [bom] Report (one Entry per dependency)
//
// # Quick Start
//
//	idx, _ := index.New(index.Options{Dir: dir})
//	oracle, _ := license.NewSPDXOracle(nil)
//	lic := license.NewResolver(oracle, nil)
//
//	a := bom.NewAssembler(bom.Options{
//	    Conda:  conda.NewResolver(idx, index.DefaultConfig(), lic, deps.Options{}),
//	    Python: python.NewResolver(pypi.NewClient(cache.NewNullCache(), 0), lic, deps.Options{}),
//	})
//	report, err := a.Generate(ctx, "./project")
package pkg
