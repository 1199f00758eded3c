// Package index caches conda repodata snapshots per (channel, platform).
//
// A [Cache] answers [Cache.Get] from memory, then from a JSON file under its
// directory, then by downloading through a [Fetcher] (normally the conda
// integration client). Downloads stream into a temporary file that is
// validated and renamed into place, so the directory only ever holds
// complete snapshots. Concurrent first requests for a key share one
// download.
//
// Which channels and platforms to search is an explicit [Config] value.
// Channels on the deny-list ("anaconda", "defaults") are dropped with a
// warning; non-string values passed to the Value variants are rejected.
//
//	cfg := index.DefaultConfig()
//	cfg.AddPlatform("linux-64")
//	c, _ := index.New(index.Options{Dir: dir})
//	snap, err := c.Get(ctx, "conda-forge", "noarch")
//	rec, ok := snap.Lookup("numpy", "1.18")
package index
