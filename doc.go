// Package metacache implements a typed read-through cache for slow-changing
// remote metadata: catalog projects and versions, users, teams, loader and
// game manifests, tag lists, plus locally computed file hashes.
//
// Every entry has a Kind. Each kind declares how its payload is keyed
// (primary key and optional alias), how long a written entry stays fresh,
// and how it is fetched from the Origin when absent:
//   - bulk by id: Project, Version, User, Team, Organization
//   - singletons stored under "0": GameManifest, Categories, ReportTypes,
//     Loaders, GameVersions, DonationPlatforms
//   - hash batch with cached misses: File
//   - one request per key: LoaderManifest
//   - local hashing of files under a billy.Filesystem: ContentHash
//   - grouped batch over "hash|loaders|game_version" keys: ContentUpdate
//
// Reads take a Behaviour:
//
//	StaleWhileRevalidate  serve expired entries, refresh them in the background
//	MustRevalidate        never serve expired entries
//	Bypass                ignore the store, always fetch and overwrite
//	StaleIfOffline        like StaleWhileRevalidate, tolerating origin failures
//
// Components:
//   - Store: persistence keyed by (id, kind). See store/sqlstore (gorm) and
//     store/kvstore (any provider.Provider: Redis, memcache, BigCache).
//   - Origin: the remote source. See origin/httporigin.
//   - Logger and Hooks: observability seams with adapters under log/ and hooks/.
package metacache
