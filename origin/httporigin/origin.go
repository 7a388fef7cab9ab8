package httporigin

import (
	"context"
	"encoding/json"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/metacache"
)

func (o *Origin) Projects(ctx context.Context, ids []string) ([]metacache.Project, error) {
	return getBatched[metacache.Project](ctx, o, o.api+"projects", ids)
}

func (o *Origin) Versions(ctx context.Context, ids []string) ([]metacache.Version, error) {
	return getBatched[metacache.Version](ctx, o, o.api+"versions", ids)
}

func (o *Origin) Users(ctx context.Context, ids []string) ([]metacache.User, error) {
	return getBatched[metacache.User](ctx, o, o.api+"users", ids)
}

func (o *Origin) Teams(ctx context.Context, ids []string) ([][]metacache.TeamMember, error) {
	return getBatched[[]metacache.TeamMember](ctx, o, o.v3+"teams", ids)
}

func (o *Origin) Organizations(ctx context.Context, ids []string) ([]metacache.Organization, error) {
	return getBatched[metacache.Organization](ctx, o, o.v3+"organizations", ids)
}

type hashQuery struct {
	Algorithm    string   `json:"algorithm"`
	Hashes       []string `json:"hashes"`
	Loaders      []string `json:"loaders,omitempty"`
	GameVersions []string `json:"game_versions,omitempty"`
}

func (o *Origin) VersionsByHash(ctx context.Context, hashes []string) (map[string]metacache.Version, error) {
	return postBatched(ctx, o, o.api+"version_files", hashes, func(chunk []string) hashQuery {
		return hashQuery{Algorithm: "sha1", Hashes: chunk}
	})
}

func (o *Origin) LatestVersionsByHash(ctx context.Context, q metacache.UpdateQuery) (map[string]metacache.Version, error) {
	return postBatched(ctx, o, o.api+"version_files/update", q.Hashes, func(chunk []string) hashQuery {
		return hashQuery{
			Algorithm:    "sha1",
			Hashes:       chunk,
			Loaders:      q.Loaders,
			GameVersions: []string{q.GameVersion},
		}
	})
}

func (o *Origin) LoaderManifest(ctx context.Context, loader string) (metacache.ModdedManifest, error) {
	var m metacache.ModdedManifest
	err := o.getJSON(ctx, o.meta+url.PathEscape(loader)+"/v0/manifest.json", &m)
	return m, err
}

func (o *Origin) GameManifest(ctx context.Context) (metacache.GameManifest, error) {
	return getOne[metacache.GameManifest](ctx, o, o.meta+"minecraft/v0/manifest.json")
}

func (o *Origin) Categories(ctx context.Context) (metacache.Categories, error) {
	return getOne[metacache.Categories](ctx, o, o.api+"tag/category")
}

func (o *Origin) ReportTypes(ctx context.Context) (metacache.ReportTypes, error) {
	return getOne[metacache.ReportTypes](ctx, o, o.api+"tag/report_type")
}

func (o *Origin) Loaders(ctx context.Context) (metacache.Loaders, error) {
	return getOne[metacache.Loaders](ctx, o, o.api+"tag/loader")
}

func (o *Origin) GameVersions(ctx context.Context) (metacache.GameVersions, error) {
	return getOne[metacache.GameVersions](ctx, o, o.api+"tag/game_version")
}

func (o *Origin) DonationPlatforms(ctx context.Context) (metacache.DonationPlatforms, error) {
	return getOne[metacache.DonationPlatforms](ctx, o, o.api+"tag/donation_platform")
}

func getOne[T any](ctx context.Context, o *Origin, u string) (T, error) {
	var v T
	err := o.getJSON(ctx, u, &v)
	return v, err
}

// getBatched requests endpoint?ids=[...] in chunks of o.batch, concurrently,
// and concatenates the results in chunk order.
func getBatched[T any](ctx context.Context, o *Origin, endpoint string, ids []string) ([]T, error) {
	chunks := chunk(ids, o.batch)
	parts := make([][]T, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range chunks {
		g.Go(func() error {
			q, err := json.Marshal(c)
			if err != nil {
				return err
			}
			return o.getJSON(gctx, endpoint+"?ids="+url.QueryEscape(string(q)), &parts[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []T
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

func postBatched(ctx context.Context, o *Origin, endpoint string, hashes []string, body func([]string) hashQuery) (map[string]metacache.Version, error) {
	chunks := chunk(hashes, o.batch)
	parts := make([]map[string]metacache.Version, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range chunks {
		g.Go(func() error {
			return o.postJSON(gctx, endpoint, body(c), &parts[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]metacache.Version)
	for _, p := range parts {
		for h, v := range p {
			out[h] = v
		}
	}
	return out, nil
}

func chunk(keys []string, n int) [][]string {
	var out [][]string
	for len(keys) > n {
		out = append(out, keys[:n:n])
		keys = keys[n:]
	}
	if len(keys) > 0 {
		out = append(out, keys)
	}
	return out
}
