package metacache

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return t0 }

func strp(s string) *string { return &s }

// ==============================
// Store fake
// ==============================

type rowKey struct {
	kind Kind
	id   string
}

type memStore struct {
	mu      sync.Mutex
	rows    map[rowKey]Entry
	finds   int
	upserts int

	findErr   error
	upsertErr error
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore { return &memStore{rows: make(map[rowKey]Entry)} }

func (s *memStore) Find(_ context.Context, kind Kind, keys []string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	if s.findErr != nil {
		return nil, s.findErr
	}
	var out []Entry
	for k, e := range s.rows {
		if k.kind != kind {
			continue
		}
		for _, key := range keys {
			if e.Matches(key) {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) Upsert(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.upsertErr != nil {
		return s.upsertErr
	}
	for _, e := range entries {
		e.Value = nil
		e.Payload = slices.Clone(e.Payload)
		s.rows[rowKey{e.Kind, e.ID}] = e
	}
	return nil
}

func (s *memStore) put(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Value = nil
	s.rows[rowKey{e.Kind, e.ID}] = e
}

func (s *memStore) row(kind Kind, id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[rowKey{kind, id}]
	return e, ok
}

func (s *memStore) count(kind Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.rows {
		if k.kind == kind {
			n++
		}
	}
	return n
}

// ==============================
// Origin fake
// ==============================

type call struct {
	method string
	keys   []string
}

type fakeOrigin struct {
	mu    sync.Mutex
	calls []call
	err   error

	// When gate is set, Projects signals entered and then blocks on gate.
	gate    chan struct{}
	entered chan struct{}

	projects   []Project
	versions   []Version
	users      []User
	teams      map[string][]TeamMember
	orgs       []Organization
	byHash     map[string]Version
	updates    map[string]map[string]Version // "loaders|game_version" -> hash -> version
	manifests  map[string]ModdedManifest
	game       GameManifest
	categories Categories
	reports    ReportTypes
	loaders    Loaders
	gameVers   GameVersions
	donations  DonationPlatforms
}

var _ Origin = (*fakeOrigin)(nil)

func (o *fakeOrigin) record(method string, keys []string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, call{method: method, keys: slices.Clone(keys)})
	return o.err
}

func (o *fakeOrigin) callsTo(method string) []call {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []call
	for _, c := range o.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (o *fakeOrigin) setErr(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

func matchesAny(keys []string, id, name string) bool {
	for _, k := range keys {
		if k == id || (name != "" && strings.EqualFold(k, name)) {
			return true
		}
	}
	return false
}

func (o *fakeOrigin) Projects(ctx context.Context, ids []string) ([]Project, error) {
	if err := o.record("projects", ids); err != nil {
		return nil, err
	}
	if o.gate != nil {
		o.entered <- struct{}{}
		select {
		case <-o.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	var out []Project
	for _, p := range o.projects {
		slug := ""
		if p.Slug != nil {
			slug = *p.Slug
		}
		if matchesAny(ids, p.ID, slug) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (o *fakeOrigin) Versions(_ context.Context, ids []string) ([]Version, error) {
	if err := o.record("versions", ids); err != nil {
		return nil, err
	}
	var out []Version
	for _, v := range o.versions {
		if matchesAny(ids, v.ID, "") {
			out = append(out, v)
		}
	}
	return out, nil
}

func (o *fakeOrigin) Users(_ context.Context, ids []string) ([]User, error) {
	if err := o.record("users", ids); err != nil {
		return nil, err
	}
	var out []User
	for _, u := range o.users {
		if matchesAny(ids, u.ID, u.Username) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (o *fakeOrigin) Teams(_ context.Context, ids []string) ([][]TeamMember, error) {
	if err := o.record("teams", ids); err != nil {
		return nil, err
	}
	var out [][]TeamMember
	for _, id := range ids {
		if m, ok := o.teams[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (o *fakeOrigin) Organizations(_ context.Context, ids []string) ([]Organization, error) {
	if err := o.record("organizations", ids); err != nil {
		return nil, err
	}
	var out []Organization
	for _, org := range o.orgs {
		if matchesAny(ids, org.ID, org.Slug) {
			out = append(out, org)
		}
	}
	return out, nil
}

func (o *fakeOrigin) VersionsByHash(_ context.Context, hashes []string) (map[string]Version, error) {
	if err := o.record("version_files", hashes); err != nil {
		return nil, err
	}
	out := make(map[string]Version)
	for _, h := range hashes {
		if v, ok := o.byHash[h]; ok {
			out[h] = v
		}
	}
	return out, nil
}

func (o *fakeOrigin) LatestVersionsByHash(_ context.Context, q UpdateQuery) (map[string]Version, error) {
	filter := strings.Join(q.Loaders, "+") + "|" + q.GameVersion
	if err := o.record("version_files/update", append([]string{filter}, q.Hashes...)); err != nil {
		return nil, err
	}
	out := make(map[string]Version)
	for _, h := range q.Hashes {
		if v, ok := o.updates[filter][h]; ok {
			out[h] = v
		}
	}
	return out, nil
}

func (o *fakeOrigin) LoaderManifest(_ context.Context, loader string) (ModdedManifest, error) {
	if err := o.record("loader_manifest", []string{loader}); err != nil {
		return ModdedManifest{}, err
	}
	return o.manifests[loader], nil
}

func (o *fakeOrigin) GameManifest(context.Context) (GameManifest, error) {
	return o.game, o.record("game_manifest", nil)
}

func (o *fakeOrigin) Categories(context.Context) (Categories, error) {
	return o.categories, o.record("categories", nil)
}

func (o *fakeOrigin) ReportTypes(context.Context) (ReportTypes, error) {
	return o.reports, o.record("report_types", nil)
}

func (o *fakeOrigin) Loaders(context.Context) (Loaders, error) {
	return o.loaders, o.record("loaders", nil)
}

func (o *fakeOrigin) GameVersions(context.Context) (GameVersions, error) {
	return o.gameVers, o.record("game_versions", nil)
}

func (o *fakeOrigin) DonationPlatforms(context.Context) (DonationPlatforms, error) {
	return o.donations, o.record("donation_platforms", nil)
}

// ==============================
// Hooks recorder
// ==============================

type hookEvents struct {
	discarded  []string // kind:id:reason
	scheduled  [][]string
	dropped    [][]string
	hashFailed []string
	failed     int
	bgFetched  int
}

type recHooks struct {
	NopHooks
	mu sync.Mutex
	ev hookEvents
}

func (h *recHooks) EntryDiscarded(kind Kind, id, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ev.discarded = append(h.ev.discarded, kind.String()+":"+id+":"+reason)
}

func (h *recHooks) RefreshScheduled(_ Kind, keys []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ev.scheduled = append(h.ev.scheduled, slices.Clone(keys))
}

func (h *recHooks) RefreshDropped(_ Kind, keys []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ev.dropped = append(h.ev.dropped, slices.Clone(keys))
}

func (h *recHooks) HashFailed(key string, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ev.hashFailed = append(h.ev.hashFailed, key)
}

func (h *recHooks) OriginFailed(Kind, int, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ev.failed++
}

func (h *recHooks) OriginFetched(_ Kind, _, _ int, background bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if background {
		h.ev.bgFetched++
	}
}

func (h *recHooks) snapshot() hookEvents {
	h.mu.Lock()
	defer h.mu.Unlock()
	return hookEvents{
		discarded:  slices.Clone(h.ev.discarded),
		scheduled:  slices.Clone(h.ev.scheduled),
		dropped:    slices.Clone(h.ev.dropped),
		hashFailed: slices.Clone(h.ev.hashFailed),
		failed:     h.ev.failed,
		bgFetched:  h.ev.bgFetched,
	}
}
