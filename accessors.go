package metacache

import "context"

// one and many narrow entries to the concrete payload type. Entries holding
// any other type are skipped.
func one[V Value](ctx context.Context, c *Cache, kind Kind, key string, b Behaviour) (V, bool, error) {
	var zero V
	es, err := c.GetMany(ctx, kind, []string{key}, b)
	if err != nil {
		return zero, false, err
	}
	for _, e := range es {
		if v, ok := e.Value.(V); ok {
			return v, true, nil
		}
	}
	return zero, false, nil
}

func many[V Value](ctx context.Context, c *Cache, kind Kind, keys []string, b Behaviour) ([]V, error) {
	es, err := c.GetMany(ctx, kind, keys, b)
	if err != nil {
		return nil, err
	}
	out := make([]V, 0, len(es))
	for _, e := range es {
		if v, ok := e.Value.(V); ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// GetProject looks a project up by id or slug.
func (c *Cache) GetProject(ctx context.Context, idOrSlug string, b Behaviour) (Project, bool, error) {
	return one[Project](ctx, c, KindProject, idOrSlug, b)
}

func (c *Cache) GetProjects(ctx context.Context, keys []string, b Behaviour) ([]Project, error) {
	return many[Project](ctx, c, KindProject, keys, b)
}

func (c *Cache) GetVersion(ctx context.Context, id string, b Behaviour) (Version, bool, error) {
	return one[Version](ctx, c, KindVersion, id, b)
}

func (c *Cache) GetVersions(ctx context.Context, ids []string, b Behaviour) ([]Version, error) {
	return many[Version](ctx, c, KindVersion, ids, b)
}

// GetUser looks a user up by id or username.
func (c *Cache) GetUser(ctx context.Context, idOrUsername string, b Behaviour) (User, bool, error) {
	return one[User](ctx, c, KindUser, idOrUsername, b)
}

func (c *Cache) GetUsers(ctx context.Context, keys []string, b Behaviour) ([]User, error) {
	return many[User](ctx, c, KindUser, keys, b)
}

func (c *Cache) GetTeam(ctx context.Context, id string, b Behaviour) (Team, bool, error) {
	return one[Team](ctx, c, KindTeam, id, b)
}

func (c *Cache) GetTeams(ctx context.Context, ids []string, b Behaviour) ([]Team, error) {
	return many[Team](ctx, c, KindTeam, ids, b)
}

func (c *Cache) GetOrganization(ctx context.Context, idOrSlug string, b Behaviour) (Organization, bool, error) {
	return one[Organization](ctx, c, KindOrganization, idOrSlug, b)
}

func (c *Cache) GetOrganizations(ctx context.Context, keys []string, b Behaviour) ([]Organization, error) {
	return many[Organization](ctx, c, KindOrganization, keys, b)
}

// GetFile resolves a sha1 file hash. A hash unknown upstream yields a File
// whose Match is nil.
func (c *Cache) GetFile(ctx context.Context, hash string, b Behaviour) (File, bool, error) {
	return one[File](ctx, c, KindFile, hash, b)
}

func (c *Cache) GetFiles(ctx context.Context, hashes []string, b Behaviour) ([]File, error) {
	return many[File](ctx, c, KindFile, hashes, b)
}

func (c *Cache) GetLoaderManifest(ctx context.Context, loader string, b Behaviour) (LoaderManifest, bool, error) {
	return one[LoaderManifest](ctx, c, KindLoaderManifest, loader, b)
}

func (c *Cache) GetLoaderManifests(ctx context.Context, loaders []string, b Behaviour) ([]LoaderManifest, error) {
	return many[LoaderManifest](ctx, c, KindLoaderManifest, loaders, b)
}

func (c *Cache) GetGameManifest(ctx context.Context, b Behaviour) (GameManifest, bool, error) {
	return one[GameManifest](ctx, c, KindGameManifest, SingletonKey, b)
}

func (c *Cache) GetCategories(ctx context.Context, b Behaviour) (Categories, bool, error) {
	return one[Categories](ctx, c, KindCategories, SingletonKey, b)
}

func (c *Cache) GetReportTypes(ctx context.Context, b Behaviour) (ReportTypes, bool, error) {
	return one[ReportTypes](ctx, c, KindReportTypes, SingletonKey, b)
}

func (c *Cache) GetLoaders(ctx context.Context, b Behaviour) (Loaders, bool, error) {
	return one[Loaders](ctx, c, KindLoaders, SingletonKey, b)
}

func (c *Cache) GetGameVersions(ctx context.Context, b Behaviour) (GameVersions, bool, error) {
	return one[GameVersions](ctx, c, KindGameVersions, SingletonKey, b)
}

func (c *Cache) GetDonationPlatforms(ctx context.Context, b Behaviour) (DonationPlatforms, bool, error) {
	return one[DonationPlatforms](ctx, c, KindDonationPlatforms, SingletonKey, b)
}

// GetContentHash hashes (or recalls the hash of) a path relative to the
// profiles root. The path may carry or omit the ".disabled" suffix.
func (c *Cache) GetContentHash(ctx context.Context, path string, b Behaviour) (ContentHash, bool, error) {
	return one[ContentHash](ctx, c, KindContentHash, path, b)
}

func (c *Cache) GetContentHashes(ctx context.Context, paths []string, b Behaviour) ([]ContentHash, error) {
	return many[ContentHash](ctx, c, KindContentHash, paths, b)
}

func (c *Cache) GetContentUpdate(ctx context.Context, hash string, loaders []string, gameVersion string, b Behaviour) (ContentUpdate, bool, error) {
	return one[ContentUpdate](ctx, c, KindContentUpdate, UpdateKey(hash, loaders, gameVersion), b)
}

// GetContentUpdates takes composite keys built with UpdateKey.
func (c *Cache) GetContentUpdates(ctx context.Context, keys []string, b Behaviour) ([]ContentUpdate, error) {
	return many[ContentUpdate](ctx, c, KindContentUpdate, keys, b)
}
