package metacache

import "context"

// Origin is the authoritative source the cache is populated from.
// Every method may be called concurrently. Unknown ids are simply absent from
// results; an error means the whole call failed.
type Origin interface {
	Projects(ctx context.Context, ids []string) ([]Project, error)
	Versions(ctx context.Context, ids []string) ([]Version, error)
	Users(ctx context.Context, ids []string) ([]User, error)
	// Teams returns one member list per known team id.
	Teams(ctx context.Context, ids []string) ([][]TeamMember, error)
	Organizations(ctx context.Context, ids []string) ([]Organization, error)

	// VersionsByHash maps sha1 file hashes to the version shipping the file.
	VersionsByHash(ctx context.Context, hashes []string) (map[string]Version, error)
	// LatestVersionsByHash maps sha1 file hashes to the newest version matching q.
	LatestVersionsByHash(ctx context.Context, q UpdateQuery) (map[string]Version, error)

	LoaderManifest(ctx context.Context, loader string) (ModdedManifest, error)

	GameManifest(ctx context.Context) (GameManifest, error)
	Categories(ctx context.Context) (Categories, error)
	ReportTypes(ctx context.Context) (ReportTypes, error)
	Loaders(ctx context.Context) (Loaders, error)
	GameVersions(ctx context.Context) (GameVersions, error)
	DonationPlatforms(ctx context.Context) (DonationPlatforms, error)
}

// UpdateQuery is one grouped update lookup: every hash shares the filter.
type UpdateQuery struct {
	Hashes      []string
	Loaders     []string
	GameVersion string
}
