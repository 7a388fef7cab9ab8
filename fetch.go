package metacache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"golang.org/x/sync/errgroup"
)

var errNoFilesystem = errors.New("no filesystem configured for content hashing")

// dispatcher turns keys known to be absent or stale into fresh entries.
type dispatcher struct {
	origin    Origin
	files     billy.Filesystem
	hashLimit int
	log       Logger
	hooks     Hooks
	now       func() time.Time
}

// fetch runs the strategy of kind for keys. It returns the entries resolved
// for keys and, in all, those entries followed by side entries; all is what
// gets written through.
func (d *dispatcher) fetch(ctx context.Context, kind Kind, keys []string) (resolved, all []Entry, err error) {
	o, ok := opsFor(kind)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind))
	}
	vals, side, err := o.fetch(d, ctx, keys)
	if err != nil {
		return nil, nil, &OriginError{Kind: kind, Keys: keys, Err: err}
	}

	now := d.now()
	all = make([]Entry, 0, len(vals)+len(side))
	for _, v := range vals {
		e, err := NewEntry(v, now)
		if err != nil {
			return nil, nil, &OriginError{Kind: kind, Keys: keys, Err: err}
		}
		all = append(all, e)
	}
	all = dedupeEntries(all)
	n := len(all)
	for _, v := range side {
		if v.PrimaryKey() == "" {
			continue
		}
		e, err := NewEntry(v, now)
		if err != nil {
			return nil, nil, &OriginError{Kind: kind, Keys: keys, Err: err}
		}
		all = append(all, e)
	}
	all = dedupeEntries(all)
	return all[:n:n], all, nil
}

// dedupeEntries keeps one entry per (Kind, ID). The first position wins and
// the last value wins, so a batch never writes the same row twice.
func dedupeEntries(es []Entry) []Entry {
	type id struct {
		kind Kind
		id   string
	}
	pos := make(map[id]int, len(es))
	out := es[:0]
	for _, e := range es {
		k := id{e.Kind, e.ID}
		if i, ok := pos[k]; ok {
			out[i] = e
			continue
		}
		pos[k] = len(out)
		out = append(out, e)
	}
	return out
}

func bulk[V Value](call func(Origin, context.Context, []string) ([]V, error)) fetchFunc {
	return func(d *dispatcher, ctx context.Context, keys []string) ([]Value, []Value, error) {
		got, err := call(d.origin, ctx, keys)
		if err != nil {
			return nil, nil, err
		}
		out := make([]Value, 0, len(got))
		for _, v := range got {
			if v.PrimaryKey() == "" {
				continue
			}
			out = append(out, v)
		}
		return out, nil, nil
	}
}

var (
	fetchProjects = bulk(Origin.Projects)
	fetchVersions = bulk(Origin.Versions)
	fetchUsers    = bulk(Origin.Users)
)

func fetchTeams(d *dispatcher, ctx context.Context, keys []string) ([]Value, []Value, error) {
	lists, err := d.origin.Teams(ctx, keys)
	if err != nil {
		return nil, nil, err
	}
	var vals, side []Value
	for _, members := range lists {
		t := NewTeam(members)
		if t.ID == "" {
			continue
		}
		vals = append(vals, t)
		for _, m := range members {
			side = append(side, m.User)
		}
	}
	return vals, side, nil
}

func fetchOrganizations(d *dispatcher, ctx context.Context, keys []string) ([]Value, []Value, error) {
	orgs, err := d.origin.Organizations(ctx, keys)
	if err != nil {
		return nil, nil, err
	}
	var vals, side []Value
	for _, o := range orgs {
		if o.ID == "" {
			continue
		}
		vals = append(vals, o)
		if o.TeamID != "" {
			side = append(side, Team{ID: o.TeamID, Members: o.Members})
		}
		for _, m := range o.Members {
			side = append(side, m.User)
		}
	}
	return vals, side, nil
}

// fetchFiles caches a payload for every requested hash. Hashes unknown
// upstream get an unresolved File so the miss is not re-requested.
func fetchFiles(d *dispatcher, ctx context.Context, keys []string) ([]Value, []Value, error) {
	found, err := d.origin.VersionsByHash(ctx, keys)
	if err != nil {
		return nil, nil, err
	}
	vals := make([]Value, 0, len(keys))
	var side []Value
	for _, h := range keys {
		f := File{Hash: h}
		if v, ok := found[h]; ok {
			f.Match = &FileMatch{ProjectID: v.ProjectID, VersionID: v.ID}
			side = append(side, v)
		}
		vals = append(vals, f)
	}
	return vals, side, nil
}

func fetchLoaderManifests(d *dispatcher, ctx context.Context, keys []string) ([]Value, []Value, error) {
	out := make([]Value, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	for i, loader := range keys {
		g.Go(func() error {
			m, err := d.origin.LoaderManifest(gctx, loader)
			if err != nil {
				return fmt.Errorf("loader %q: %w", loader, err)
			}
			out[i] = LoaderManifest{Loader: loader, Manifest: m}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return out, nil, nil
}

// singleton ignores the keys: there is exactly one instance, stored under SingletonKey.
func singleton[V Value](call func(Origin, context.Context) (V, error)) fetchFunc {
	return func(d *dispatcher, ctx context.Context, _ []string) ([]Value, []Value, error) {
		v, err := call(d.origin, ctx)
		if err != nil {
			return nil, nil, err
		}
		return []Value{v}, nil, nil
	}
}

// fetchContentHashes hashes files under the filesystem root. A key that
// cannot be read is dropped without failing the batch.
func fetchContentHashes(d *dispatcher, ctx context.Context, keys []string) ([]Value, []Value, error) {
	if d.files == nil {
		return nil, nil, errNoFilesystem
	}
	hashed := make([]Value, len(keys))
	var g errgroup.Group
	g.SetLimit(d.hashLimit)
	for i, key := range keys {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			h, err := hashFile(d.files, key)
			if err != nil {
				d.hooks.HashFailed(key, err)
				d.log.Debug("content hash failed", Fields{"path": key, "err": err})
				return nil
			}
			hashed[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	out := hashed[:0]
	for _, v := range hashed {
		if v != nil {
			out = append(out, v)
		}
	}
	return out, nil, nil
}

func hashFile(fs billy.Filesystem, key string) (ContentHash, error) {
	if !filepath.IsLocal(filepath.FromSlash(key)) {
		return ContentHash{}, fmt.Errorf("path %q escapes the profiles root", key)
	}
	name, f, err := openContent(fs, key)
	if err != nil {
		return ContentHash{}, err
	}
	defer f.Close()

	h := sha1.New()
	buf := make([]byte, hashChunkSize)
	var size uint64
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			size += uint64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return ContentHash{}, err
		}
	}
	return ContentHash{
		Path:        name,
		Size:        size,
		Hash:        hex.EncodeToString(h.Sum(nil)),
		ProjectType: ProjectTypeFromPath(name),
	}, nil
}

// openContent opens key, falling back to its enabled/disabled twin when the
// file was toggled since the key was recorded.
func openContent(fs billy.Filesystem, key string) (string, billy.File, error) {
	f, err := fs.Open(key)
	if err == nil {
		return key, f, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", nil, err
	}
	twin := key + disabledSuffix
	if strings.HasSuffix(key, disabledSuffix) {
		twin = strings.TrimSuffix(key, disabledSuffix)
	}
	tf, terr := fs.Open(twin)
	if terr != nil {
		return "", nil, err
	}
	return twin, tf, nil
}

type updateGroup struct {
	loaders     string
	gameVersion string
	hashes      []string
}

// fetchContentUpdates groups composite keys by filter, issues one lookup per
// group in parallel and expands the answers back per key. Hashes without an
// answer get an explicit "no update" payload.
func fetchContentUpdates(d *dispatcher, ctx context.Context, keys []string) ([]Value, []Value, error) {
	var groups []*updateGroup
	byFilter := make(map[string]*updateGroup)
	for _, key := range keys {
		hash, loaders, gv, ok := ParseUpdateKey(key)
		if !ok {
			d.log.Debug("skipping malformed content update key", Fields{"key": key})
			continue
		}
		fk := loaders + updateKeySep + gv
		g := byFilter[fk]
		if g == nil {
			g = &updateGroup{loaders: loaders, gameVersion: gv}
			byFilter[fk] = g
			groups = append(groups, g)
		}
		g.hashes = append(g.hashes, hash)
	}

	answers := make([]map[string]Version, len(groups))
	eg, ectx := errgroup.WithContext(ctx)
	for i, g := range groups {
		eg.Go(func() error {
			m, err := d.origin.LatestVersionsByHash(ectx, UpdateQuery{
				Hashes:      g.hashes,
				Loaders:     strings.Split(g.loaders, "+"),
				GameVersion: g.gameVersion,
			})
			if err != nil {
				return fmt.Errorf("updates for %s/%s: %w", g.loaders, g.gameVersion, err)
			}
			answers[i] = m
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	var vals, side []Value
	for i, g := range groups {
		loaders := strings.Split(g.loaders, "+")
		for _, h := range g.hashes {
			u := ContentUpdate{Hash: h, Loaders: loaders, GameVersion: g.gameVersion}
			if v, ok := answers[i][h]; ok && v.ID != "" {
				id := v.ID
				u.UpdateVersionID = &id
				side = append(side, v)
			}
			vals = append(vals, u)
		}
	}
	return vals, side, nil
}
