package metacache

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
)

func newTestCache(t *testing.T, st Store, og Origin, mod func(*Options)) *Cache {
	t.Helper()
	opts := Options{Store: st, Origin: og, Now: fixedClock}
	if mod != nil {
		mod(&opts)
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func entryAt(t *testing.T, v Value, at time.Time) Entry {
	t.Helper()
	e, err := NewEntry(v, at)
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	return e
}

func freshEntry(t *testing.T, v Value) Entry { return entryAt(t, v, t0) }

// staleEntry expired one minute before t0.
func staleEntry(t *testing.T, v Value) Entry {
	return entryAt(t, v, t0.Add(-v.Kind().Freshness()-time.Minute))
}

func writeFile(t *testing.T, fs billy.Filesystem, name string, data []byte) {
	t.Helper()
	if err := util.WriteFile(fs, name, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func storedProject(t *testing.T, st *memStore, id string) Project {
	t.Helper()
	row, ok := st.row(KindProject, id)
	if !ok {
		t.Fatalf("project %q not stored", id)
	}
	var p Project
	if err := json.Unmarshal(row.Payload, &p); err != nil {
		t.Fatalf("decode stored project: %v", err)
	}
	return p
}

// ==============================
// Read algorithm scenarios
// ==============================

// TestGetProjectsFreshStaleAndMissing: one fresh hit, one stale hit by alias,
// one key unknown everywhere.
func TestGetProjectsFreshStaleAndMissing(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.put(freshEntry(t, Project{ID: "abc123", Title: "Fresh"}))
	st.put(staleEntry(t, Project{ID: "def456", Slug: strp("my-slug"), Title: "Old"}))

	og := &fakeOrigin{projects: []Project{{ID: "def456", Slug: strp("my-slug"), Title: "New"}}}
	hooks := &recHooks{}
	c := newTestCache(t, st, og, func(o *Options) { o.Hooks = hooks })

	got, err := c.GetProjects(ctx, []string{"abc123", "my-slug", "zzz999"}, StaleWhileRevalidate)
	if err != nil {
		t.Fatalf("GetProjects: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 projects, got %d: %+v", len(got), got)
	}
	titles := map[string]string{}
	for _, p := range got {
		titles[p.ID] = p.Title
	}
	if titles["abc123"] != "Fresh" || titles["def456"] != "Old" {
		t.Fatalf("unexpected payloads: %v", titles)
	}

	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	calls := og.callsTo("projects")
	if len(calls) != 2 {
		t.Fatalf("expected one sync and one background origin call, got %+v", calls)
	}
	if !slices.Equal(calls[0].keys, []string{"zzz999"}) {
		t.Fatalf("sync fetch keys = %v, want [zzz999]", calls[0].keys)
	}
	if !slices.Equal(calls[1].keys, []string{"def456"}) {
		t.Fatalf("refresh keys = %v, want [def456]", calls[1].keys)
	}

	ev := hooks.snapshot()
	if len(ev.scheduled) != 1 || !slices.Equal(ev.scheduled[0], []string{"def456"}) {
		t.Fatalf("expected exactly one refresh for def456, got %v", ev.scheduled)
	}
	if ev.bgFetched != 1 {
		t.Fatalf("expected one background fetch, got %d", ev.bgFetched)
	}

	if p := storedProject(t, st, "def456"); p.Title != "New" {
		t.Fatalf("refresh did not overwrite stale row: %+v", p)
	}
	row, _ := st.row(KindProject, "def456")
	if want := t0.Add(24 * time.Hour); !row.ExpiresAt.Equal(want) {
		t.Fatalf("refreshed expiry = %v, want %v", row.ExpiresAt, want)
	}
	if _, ok := st.row(KindProject, "zzz999"); ok {
		t.Fatalf("unknown id must not be cached")
	}
}

// TestGetContentHashesMissingFile: a missing file drops only its own key.
func TestGetContentHashesMissingFile(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	writeFile(t, fs, "profile/mods/a.jar", []byte("hello"))

	hooks := &recHooks{}
	st := newMemStore()
	c := newTestCache(t, st, &fakeOrigin{}, func(o *Options) {
		o.Files = fs
		o.Hooks = hooks
	})

	got, err := c.GetContentHashes(ctx, []string{"profile/mods/a.jar", "profile/mods/b.jar"}, StaleWhileRevalidate)
	if err != nil {
		t.Fatalf("GetContentHashes: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 hash, got %d", len(got))
	}
	h := got[0]
	if h.Path != "profile/mods/a.jar" || h.Size != 5 || h.Hash != "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d" {
		t.Fatalf("unexpected hash: %+v", h)
	}
	if h.ProjectType == nil || *h.ProjectType != ProjectTypeMod {
		t.Fatalf("expected project type mod, got %v", h.ProjectType)
	}
	if ev := hooks.snapshot(); !slices.Equal(ev.hashFailed, []string{"profile/mods/b.jar"}) {
		t.Fatalf("expected hash failure for b.jar, got %v", ev.hashFailed)
	}
	row, ok := st.row(KindContentHash, "profile/mods/a.jar")
	if !ok {
		t.Fatalf("hash not stored")
	}
	if want := t0.Add(30 * 24 * time.Hour); !row.ExpiresAt.Equal(want) {
		t.Fatalf("expiry = %v, want %v", row.ExpiresAt, want)
	}
}

func TestContentHashSpansChunks(t *testing.T) {
	ctx := context.Background()
	data := bytes.Repeat([]byte("0123456789abcdef"), (hashChunkSize*2+1234)/16)
	fs := memfs.New()
	writeFile(t, fs, "p/resourcepacks/big.zip", data)
	c := newTestCache(t, newMemStore(), &fakeOrigin{}, func(o *Options) { o.Files = fs })

	got, ok, err := c.GetContentHash(ctx, "p/resourcepacks/big.zip", StaleWhileRevalidate)
	if err != nil || !ok {
		t.Fatalf("GetContentHash: ok=%v err=%v", ok, err)
	}
	sum := sha1.Sum(data)
	if got.Hash != hex.EncodeToString(sum[:]) || got.Size != uint64(len(data)) {
		t.Fatalf("hash mismatch: %+v", got)
	}
	if got.ProjectType == nil || *got.ProjectType != ProjectTypeResourcePack {
		t.Fatalf("expected resourcepack, got %v", got.ProjectType)
	}
}

func TestContentHashDisabledTwin(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	writeFile(t, fs, "p/mods/c.jar.disabled", []byte("data"))
	st := newMemStore()
	c := newTestCache(t, st, &fakeOrigin{}, func(o *Options) { o.Files = fs })

	got, ok, err := c.GetContentHash(ctx, "p/mods/c.jar", StaleWhileRevalidate)
	if err != nil || !ok {
		t.Fatalf("GetContentHash: ok=%v err=%v", ok, err)
	}
	if got.Path != "p/mods/c.jar.disabled" || got.PrimaryKey() != "p/mods/c.jar" {
		t.Fatalf("unexpected twin resolution: %+v", got)
	}

	// The file is gone; the disabled alias must still hit the stored entry.
	if err := fs.Remove("p/mods/c.jar.disabled"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	again, ok, err := c.GetContentHash(ctx, "p/mods/c.jar.disabled", MustRevalidate)
	if err != nil || !ok || again.Hash != got.Hash {
		t.Fatalf("alias lookup: ok=%v err=%v got=%+v", ok, err, again)
	}
}

func TestContentHashRejectsEscapingPath(t *testing.T) {
	ctx := context.Background()
	hooks := &recHooks{}
	c := newTestCache(t, newMemStore(), &fakeOrigin{}, func(o *Options) {
		o.Files = memfs.New()
		o.Hooks = hooks
	})
	if _, ok, err := c.GetContentHash(ctx, "../secret", StaleWhileRevalidate); err != nil || ok {
		t.Fatalf("expected silent miss, ok=%v err=%v", ok, err)
	}
	if ev := hooks.snapshot(); len(ev.hashFailed) != 1 {
		t.Fatalf("expected one hash failure, got %v", ev.hashFailed)
	}
}

func TestContentHashWithoutFilesystem(t *testing.T) {
	c := newTestCache(t, newMemStore(), &fakeOrigin{}, nil)
	_, _, err := c.GetContentHash(context.Background(), "p/mods/a.jar", StaleWhileRevalidate)
	var oe *OriginError
	if !errors.As(err, &oe) || !errors.Is(err, errNoFilesystem) {
		t.Fatalf("expected OriginError wrapping errNoFilesystem, got %v", err)
	}
}

// ==============================
// Properties
// ==============================

// countingFS tracks how many files are open at once.
type countingFS struct {
	billy.Filesystem
	open, peak atomic.Int32
}

func (fs *countingFS) Open(name string) (billy.File, error) {
	n := fs.open.Add(1)
	for {
		p := fs.peak.Load()
		if n <= p || fs.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	f, err := fs.Filesystem.Open(name)
	if err != nil {
		fs.open.Add(-1)
		return nil, err
	}
	return &countedFile{File: f, fs: fs}, nil
}

type countedFile struct {
	billy.File
	fs *countingFS
}

func (f *countedFile) Close() error {
	f.fs.open.Add(-1)
	return f.File.Close()
}

func TestContentHashConcurrencyIsBounded(t *testing.T) {
	ctx := context.Background()
	fs := &countingFS{Filesystem: memfs.New()}
	keys := make([]string, 8)
	for i := range keys {
		keys[i] = fmt.Sprintf("p/mods/m%d.jar", i)
		writeFile(t, fs.Filesystem, keys[i], []byte(keys[i]))
	}
	c := newTestCache(t, newMemStore(), &fakeOrigin{}, func(o *Options) {
		o.Files = fs
		o.HashConcurrency = 2
	})

	got, err := c.GetContentHashes(ctx, keys, Bypass)
	if err != nil {
		t.Fatalf("GetContentHashes: %v", err)
	}
	if len(got) != len(keys) {
		t.Fatalf("expected %d hashes, got %d", len(keys), len(got))
	}
	if p := fs.peak.Load(); p > 2 {
		t.Fatalf("peak open files = %d, want <= 2", p)
	}
}

func fullOrigin() *fakeOrigin {
	member := TeamMember{TeamID: "t1", User: User{ID: "u1", Username: "Alice"}, IsOwner: true, Role: "Owner"}
	return &fakeOrigin{
		projects: []Project{{ID: "p1", Slug: strp("sodium"), Title: "Sodium", Categories: []string{"optimization"}}},
		versions: []Version{{ID: "v1", ProjectID: "p1", Name: "0.5.8", Loaders: []string{"fabric"}}},
		users:    []User{{ID: "u1", Username: "Alice"}},
		teams:    map[string][]TeamMember{"t1": {member}},
		orgs:     []Organization{{ID: "o1", Slug: "CaffeineMC", Name: "CaffeineMC", TeamID: "t2"}},
		byHash:   map[string]Version{"h1": {ID: "v1", ProjectID: "p1"}},
		updates: map[string]map[string]Version{
			"fabric|1.20.1": {"h1": {ID: "v2", ProjectID: "p1"}},
		},
		manifests: map[string]ModdedManifest{
			"fabric": {GameVersions: []ModdedGameVersion{{ID: "1.20.1", Stable: true}}},
		},
		game:       GameManifest{Latest: LatestGameVersion{Release: "1.21", Snapshot: "24w14a"}},
		categories: Categories{{Name: "magic", ProjectType: "mod", Header: "categories"}},
		reports:    ReportTypes{"spam", "copyright"},
		loaders:    Loaders{{Name: "fabric", SupportedProjectTypes: []string{"mod"}}},
		gameVers:   GameVersions{{Version: "1.20.1", VersionType: "release", Major: false}},
		donations:  DonationPlatforms{{Short: "patreon", Name: "Patreon"}},
	}
}

var kindProbes = []struct {
	kind Kind
	key  string
}{
	{KindProject, "p1"},
	{KindVersion, "v1"},
	{KindUser, "u1"},
	{KindTeam, "t1"},
	{KindOrganization, "o1"},
	{KindFile, "h1"},
	{KindLoaderManifest, "fabric"},
	{KindGameManifest, SingletonKey},
	{KindCategories, SingletonKey},
	{KindReportTypes, SingletonKey},
	{KindLoaders, SingletonKey},
	{KindGameVersions, SingletonKey},
	{KindDonationPlatforms, SingletonKey},
	{KindContentHash, "profile/mods/a.jar"},
	{KindContentUpdate, UpdateKey("h1", []string{"fabric"}, "1.20.1")},
}

// TestRoundTripAndExpiryAllKinds: a Bypass read followed by a MustRevalidate
// read returns the same payload from the store, stamped with the kind's freshness.
func TestRoundTripAndExpiryAllKinds(t *testing.T) {
	ctx := context.Background()
	covered := map[Kind]bool{}
	for _, p := range kindProbes {
		covered[p.kind] = true
	}
	for _, k := range AllKinds() {
		if !covered[k] {
			t.Fatalf("kind %s has no probe", k)
		}
	}

	fs := memfs.New()
	writeFile(t, fs, "profile/mods/a.jar", []byte("hello"))
	og := fullOrigin()
	c := newTestCache(t, newMemStore(), og, func(o *Options) { o.Files = fs })

	for _, p := range kindProbes {
		first, err := c.GetMany(ctx, p.kind, []string{p.key}, Bypass)
		if err != nil || len(first) != 1 {
			t.Fatalf("%s: Bypass read: n=%d err=%v", p.kind, len(first), err)
		}
		if want := t0.Add(p.kind.Freshness()); !first[0].ExpiresAt.Equal(want) {
			t.Fatalf("%s: expires_at = %v, want %v", p.kind, first[0].ExpiresAt, want)
		}

		og.mu.Lock()
		before := len(og.calls)
		og.mu.Unlock()

		second, err := c.GetMany(ctx, p.kind, []string{p.key}, MustRevalidate)
		if err != nil || len(second) != 1 {
			t.Fatalf("%s: MustRevalidate read: n=%d err=%v", p.kind, len(second), err)
		}
		if !bytes.Equal(first[0].Payload, second[0].Payload) {
			t.Fatalf("%s: payload mismatch:\n%s\n%s", p.kind, first[0].Payload, second[0].Payload)
		}
		if second[0].Value == nil || second[0].Value.Kind() != p.kind {
			t.Fatalf("%s: decoded value missing or wrong kind: %T", p.kind, second[0].Value)
		}

		og.mu.Lock()
		after := len(og.calls)
		og.mu.Unlock()
		if after != before {
			t.Fatalf("%s: fresh read must not reach origin", p.kind)
		}
	}
}

func TestAliasEquivalence(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newMemStore(), fullOrigin(), nil)

	byID, ok, err := c.GetProject(ctx, "p1", StaleWhileRevalidate)
	if err != nil || !ok {
		t.Fatalf("by id: ok=%v err=%v", ok, err)
	}
	for _, alias := range []string{"sodium", "SODIUM"} {
		byAlias, ok, err := c.GetProject(ctx, alias, MustRevalidate)
		if err != nil || !ok {
			t.Fatalf("by alias %q: ok=%v err=%v", alias, ok, err)
		}
		if byAlias.ID != byID.ID || byAlias.Title != byID.Title {
			t.Fatalf("alias %q resolved to %+v, want %+v", alias, byAlias, byID)
		}
	}

	u1, _, _ := c.GetUser(ctx, "alice", StaleWhileRevalidate)
	u2, _, _ := c.GetUser(ctx, "u1", MustRevalidate)
	if u1.ID != "u1" || u2.Username != "Alice" {
		t.Fatalf("user alias mismatch: %+v vs %+v", u1, u2)
	}

	o1, ok, err := c.GetOrganization(ctx, "caffeinemc", StaleWhileRevalidate)
	if err != nil || !ok || o1.ID != "o1" {
		t.Fatalf("org by slug: ok=%v err=%v got=%+v", ok, err, o1)
	}
}

func TestGracefulMiss(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	c := newTestCache(t, st, fullOrigin(), nil)

	for _, b := range []Behaviour{StaleWhileRevalidate, MustRevalidate, Bypass, StaleIfOffline} {
		_, ok, err := c.GetProject(ctx, "does-not-exist", b)
		if err != nil || ok {
			t.Fatalf("%s: expected silent miss, ok=%v err=%v", b, ok, err)
		}
	}
	if st.count(KindProject) != 0 {
		t.Fatalf("misses must not be cached for bulk kinds")
	}
}

func TestMustRevalidateNeverServesExpired(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.put(staleEntry(t, Project{ID: "p1", Slug: strp("sodium"), Title: "Old"}))
	st.put(staleEntry(t, Project{ID: "gone", Title: "Deleted upstream"}))
	hooks := &recHooks{}
	c := newTestCache(t, st, fullOrigin(), func(o *Options) { o.Hooks = hooks })

	got, err := c.GetProjects(ctx, []string{"sodium", "gone"}, MustRevalidate)
	if err != nil {
		t.Fatalf("GetProjects: %v", err)
	}
	if len(got) != 1 || got[0].ID != "p1" || got[0].Title != "Sodium" {
		t.Fatalf("expected only the revalidated project, got %+v", got)
	}
	ev := hooks.snapshot()
	if len(ev.scheduled) != 0 {
		t.Fatalf("MustRevalidate must not schedule refreshes, got %v", ev.scheduled)
	}
	if len(ev.discarded) != 2 {
		t.Fatalf("expected two expired discards, got %v", ev.discarded)
	}
}

func TestBypassOverwritesFreshRow(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.put(freshEntry(t, Project{ID: "p1", Slug: strp("sodium"), Title: "Local"}))
	c := newTestCache(t, st, fullOrigin(), nil)

	got, ok, err := c.GetProject(ctx, "p1", Bypass)
	if err != nil || !ok || got.Title != "Sodium" {
		t.Fatalf("Bypass: ok=%v err=%v got=%+v", ok, err, got)
	}
	if st.finds != 0 {
		t.Fatalf("Bypass must not read the store, finds=%d", st.finds)
	}
	if p := storedProject(t, st, "p1"); p.Title != "Sodium" {
		t.Fatalf("stored row not overwritten: %+v", p)
	}
}

// ==============================
// Discards and errors
// ==============================

func TestUndecodableRowIsTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.put(Entry{ID: "p1", Kind: KindProject, Payload: []byte(`{"id":5}`), ExpiresAt: t0.Add(time.Hour)})
	hooks := &recHooks{}
	og := fullOrigin()
	c := newTestCache(t, st, og, func(o *Options) { o.Hooks = hooks })

	got, ok, err := c.GetProject(ctx, "p1", StaleWhileRevalidate)
	if err != nil || !ok || got.Title != "Sodium" {
		t.Fatalf("expected refetch, ok=%v err=%v got=%+v", ok, err, got)
	}
	if ev := hooks.snapshot(); !slices.Equal(ev.discarded, []string{"project:p1:decode"}) {
		t.Fatalf("unexpected discards: %v", ev.discarded)
	}
	if n := len(og.callsTo("projects")); n != 1 {
		t.Fatalf("expected one origin call, got %d", n)
	}
}

func TestRowWithForeignKeyIsDiscarded(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	e := freshEntry(t, Project{ID: "other", Title: "Wrong"})
	e.ID = "p1"
	st.put(e)
	hooks := &recHooks{}
	c := newTestCache(t, st, fullOrigin(), func(o *Options) { o.Hooks = hooks })

	got, ok, err := c.GetProject(ctx, "p1", StaleWhileRevalidate)
	if err != nil || !ok || got.ID != "p1" {
		t.Fatalf("ok=%v err=%v got=%+v", ok, err, got)
	}
	if ev := hooks.snapshot(); !slices.Equal(ev.discarded, []string{"project:p1:key_mismatch"}) {
		t.Fatalf("unexpected discards: %v", ev.discarded)
	}
}

func TestOversizedPayloadIsDiscarded(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.put(freshEntry(t, Project{ID: "p1", Title: "Sodium"}))
	hooks := &recHooks{}
	c := newTestCache(t, st, fullOrigin(), func(o *Options) {
		o.Hooks = hooks
		o.MaxPayloadBytes = 8
	})
	if _, _, err := c.GetProject(ctx, "p1", StaleWhileRevalidate); err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if ev := hooks.snapshot(); len(ev.discarded) != 1 {
		t.Fatalf("expected one discard, got %v", ev.discarded)
	}
}

func TestStoreErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk on fire")

	st := newMemStore()
	st.findErr = boom
	c := newTestCache(t, st, fullOrigin(), nil)
	_, _, err := c.GetProject(ctx, "p1", StaleWhileRevalidate)
	var se *StoreError
	if !errors.As(err, &se) || se.Op != OpFind || !errors.Is(err, boom) {
		t.Fatalf("expected find StoreError, got %v", err)
	}

	st2 := newMemStore()
	st2.upsertErr = boom
	c2 := newTestCache(t, st2, fullOrigin(), nil)
	_, _, err = c2.GetProject(ctx, "p1", StaleWhileRevalidate)
	if !errors.As(err, &se) || se.Op != OpUpsert || se.Kind != KindProject {
		t.Fatalf("expected upsert StoreError, got %v", err)
	}
}

func TestOriginFailureIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")
	st := newMemStore()
	st.put(freshEntry(t, Project{ID: "p1", Title: "Sodium"}))
	og := fullOrigin()
	og.setErr(boom)
	c := newTestCache(t, st, og, nil)

	got, err := c.GetProjects(ctx, []string{"p1", "p2"}, StaleWhileRevalidate)
	if got != nil {
		t.Fatalf("failed call must return nothing, got %+v", got)
	}
	var oe *OriginError
	if !errors.As(err, &oe) || oe.Kind != KindProject || !slices.Equal(oe.Keys, []string{"p2"}) || !errors.Is(err, boom) {
		t.Fatalf("expected OriginError for p2, got %v", err)
	}
}

func TestStaleIfOfflineServesStoreOnOriginFailure(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.put(staleEntry(t, Project{ID: "p1", Title: "Cached"}))
	og := fullOrigin()
	og.setErr(errors.New("offline"))
	hooks := &recHooks{}
	c := newTestCache(t, st, og, func(o *Options) { o.Hooks = hooks })

	got, err := c.GetProjects(ctx, []string{"p1", "p2"}, StaleIfOffline)
	if err != nil {
		t.Fatalf("StaleIfOffline must swallow origin errors: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Cached" {
		t.Fatalf("expected stored project, got %+v", got)
	}
	ev := hooks.snapshot()
	if len(ev.scheduled) != 1 || !slices.Equal(ev.scheduled[0], []string{"p1", "p2"}) {
		t.Fatalf("expected refresh of p1 and p2, got %v", ev.scheduled)
	}

	// The same failure under StaleWhileRevalidate surfaces.
	if _, err := c.GetProjects(ctx, []string{"p2"}, StaleWhileRevalidate); err == nil {
		t.Fatalf("expected error under StaleWhileRevalidate")
	}
}

func TestInvalidArguments(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	c := newTestCache(t, st, fullOrigin(), nil)

	if _, err := c.GetMany(ctx, Kind(0), []string{"x"}, StaleWhileRevalidate); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if _, err := c.GetMany(ctx, KindProject, []string{"x"}, Behaviour(42)); !errors.Is(err, ErrInvalidBehaviour) {
		t.Fatalf("expected ErrInvalidBehaviour, got %v", err)
	}
	got, err := c.GetMany(ctx, KindProject, nil, StaleWhileRevalidate)
	if err != nil || len(got) != 0 || st.finds != 0 {
		t.Fatalf("empty input must do no I/O: got=%v err=%v finds=%d", got, err, st.finds)
	}
}

func TestNewRequiresStoreAndOrigin(t *testing.T) {
	if _, err := New(Options{Origin: &fakeOrigin{}}); err == nil {
		t.Fatalf("expected error without store")
	}
	if _, err := New(Options{Store: newMemStore()}); err == nil {
		t.Fatalf("expected error without origin")
	}
	if _, err := New(Options{Store: newMemStore(), Origin: &fakeOrigin{}, RefreshQueue: -1}); err == nil {
		t.Fatalf("expected error on negative limits")
	}
}

func TestClosedCache(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newMemStore(), fullOrigin(), nil)
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := c.GetMany(ctx, KindProject, []string{"p1"}, StaleWhileRevalidate); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := c.Put(ctx, User{ID: "u1"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Put, got %v", err)
	}
}

// ==============================
// Per-kind strategies
// ==============================

func TestFileMissesAreCached(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	og := fullOrigin()
	c := newTestCache(t, st, og, nil)

	files, err := c.GetFiles(ctx, []string{"h1", "h2"}, StaleWhileRevalidate)
	if err != nil || len(files) != 2 {
		t.Fatalf("GetFiles: n=%d err=%v", len(files), err)
	}
	for _, f := range files {
		switch f.Hash {
		case "h1":
			if !f.Resolved() || f.Match.VersionID != "v1" || f.Match.ProjectID != "p1" {
				t.Fatalf("h1 should resolve to v1: %+v", f)
			}
		case "h2":
			if f.Resolved() {
				t.Fatalf("h2 should be unresolved: %+v", f)
			}
		}
	}
	if _, ok := st.row(KindVersion, "v1"); !ok {
		t.Fatalf("matched version should be written through")
	}

	if _, err := c.GetFiles(ctx, []string{"h1", "h2"}, MustRevalidate); err != nil {
		t.Fatalf("second GetFiles: %v", err)
	}
	if n := len(og.callsTo("version_files")); n != 1 {
		t.Fatalf("unresolved hashes must be served from the store, calls=%d", n)
	}
}

func TestTeamAndOrganizationSideEntries(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	og := fullOrigin()
	og.orgs[0].Members = []TeamMember{{TeamID: "t2", User: User{ID: "u2", Username: "bob"}}}
	c := newTestCache(t, st, og, nil)

	team, ok, err := c.GetTeam(ctx, "t1", StaleWhileRevalidate)
	if err != nil || !ok || len(team.Members) != 1 {
		t.Fatalf("GetTeam: ok=%v err=%v team=%+v", ok, err, team)
	}
	if _, ok, err := c.GetUser(ctx, "ALICE", MustRevalidate); err != nil || !ok {
		t.Fatalf("member user should be cached: ok=%v err=%v", ok, err)
	}
	if n := len(og.callsTo("users")); n != 0 {
		t.Fatalf("user must come from side entries, calls=%d", n)
	}

	if _, ok, err := c.GetOrganization(ctx, "o1", StaleWhileRevalidate); err != nil || !ok {
		t.Fatalf("GetOrganization: ok=%v err=%v", ok, err)
	}
	if _, ok := st.row(KindTeam, "t2"); !ok {
		t.Fatalf("organization team should be written through")
	}
	if _, ok := st.row(KindUser, "u2"); !ok {
		t.Fatalf("organization members should be written through")
	}
}

func TestContentUpdatesGroupedByFilter(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	og := fullOrigin()
	c := newTestCache(t, st, og, nil)

	keys := []string{
		UpdateKey("h1", []string{"fabric"}, "1.20.1"),
		UpdateKey("h2", []string{"fabric"}, "1.20.1"),
		UpdateKey("h3", []string{"forge", "neoforge"}, "1.20.1"),
		"not-a-composite-key",
	}
	got, err := c.GetContentUpdates(ctx, keys, StaleWhileRevalidate)
	if err != nil {
		t.Fatalf("GetContentUpdates: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 updates, got %d", len(got))
	}
	for _, u := range got {
		switch u.Hash {
		case "h1":
			if !u.Available() || *u.UpdateVersionID != "v2" {
				t.Fatalf("h1 should have update v2: %+v", u)
			}
		case "h2", "h3":
			if u.Available() {
				t.Fatalf("%s should have no update: %+v", u.Hash, u)
			}
		}
	}
	for _, u := range got {
		if !slices.Contains(keys, u.PrimaryKey()) {
			t.Fatalf("primary key must equal a requested composite key: %q", u.PrimaryKey())
		}
	}

	calls := og.callsTo("version_files/update")
	if len(calls) != 2 {
		t.Fatalf("expected one call per filter group, got %+v", calls)
	}
	if _, ok := st.row(KindVersion, "v2"); !ok {
		t.Fatalf("update version should be written through")
	}
}

func TestLoaderManifestsFanOut(t *testing.T) {
	ctx := context.Background()
	og := fullOrigin()
	c := newTestCache(t, newMemStore(), og, nil)

	got, err := c.GetLoaderManifests(ctx, []string{"fabric", "quilt", "fabric"}, StaleWhileRevalidate)
	if err != nil || len(got) != 2 {
		t.Fatalf("GetLoaderManifests: n=%d err=%v", len(got), err)
	}
	if n := len(og.callsTo("loader_manifest")); n != 2 {
		t.Fatalf("expected one call per loader, got %d", n)
	}
}

func TestSingletonFetchedOnce(t *testing.T) {
	ctx := context.Background()
	og := fullOrigin()
	c := newTestCache(t, newMemStore(), og, nil)

	got, err := c.GetMany(ctx, KindCategories, []string{SingletonKey, "anything"}, Bypass)
	if err != nil || len(got) != 1 || got[0].ID != SingletonKey {
		t.Fatalf("GetMany: got=%+v err=%v", got, err)
	}
	if n := len(og.callsTo("categories")); n != 1 {
		t.Fatalf("expected a single origin call, got %d", n)
	}
	cats, ok, err := c.GetCategories(ctx, MustRevalidate)
	if err != nil || !ok || len(cats) != 1 || cats[0].Name != "magic" {
		t.Fatalf("GetCategories: ok=%v err=%v cats=%+v", ok, err, cats)
	}
}

func TestSingletonAnyKeyHitsStore(t *testing.T) {
	ctx := context.Background()
	og := fullOrigin()
	st := newMemStore()
	c := newTestCache(t, st, og, nil)

	for range 2 {
		got, err := c.GetMany(ctx, KindCategories, []string{"categories"}, StaleWhileRevalidate)
		if err != nil || len(got) != 1 || got[0].ID != SingletonKey {
			t.Fatalf("GetMany: got=%+v err=%v", got, err)
		}
	}
	if n := len(og.callsTo("categories")); n != 1 {
		t.Fatalf("second read should be served from the store, got %d origin calls", n)
	}
	if n := st.count(KindCategories); n != 1 {
		t.Fatalf("expected one stored row, got %d", n)
	}
}

func TestPutWritesThrough(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	c := newTestCache(t, st, &fakeOrigin{}, nil)

	h := ContentHash{Path: "p/mods/x.jar", Size: 3, Hash: "abc"}
	if err := c.Put(ctx, h, h); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := c.GetContentHash(ctx, "p/mods/x.jar.disabled", MustRevalidate)
	if err != nil || !ok || got.Hash != "abc" {
		t.Fatalf("lookup by alias after Put: ok=%v err=%v got=%+v", ok, err, got)
	}
	if st.upserts != 1 {
		t.Fatalf("expected one batch write, got %d", st.upserts)
	}
	if err := c.Put(ctx, Value(nil)); err == nil {
		t.Fatalf("expected error for nil value")
	}
}
