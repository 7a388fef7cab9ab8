package metacache

import (
	"context"

	"github.com/unkn0wn-root/metacache/codec"
)

// fetchFunc returns the values resolved for keys plus side values that the
// origin response embedded and that are written through but not returned.
type fetchFunc func(d *dispatcher, ctx context.Context, keys []string) (values, side []Value, err error)

type decodeFunc func(payload []byte, maxBytes int) (Value, error)

type kindOps struct {
	decode decodeFunc
	fetch  fetchFunc
}

// ops is the static dispatch table. Every valid Kind has an entry.
var ops = [...]kindOps{
	KindProject:           {decodeAs[Project], fetchProjects},
	KindVersion:           {decodeAs[Version], fetchVersions},
	KindUser:              {decodeAs[User], fetchUsers},
	KindTeam:              {decodeAs[Team], fetchTeams},
	KindOrganization:      {decodeAs[Organization], fetchOrganizations},
	KindFile:              {decodeAs[File], fetchFiles},
	KindLoaderManifest:    {decodeAs[LoaderManifest], fetchLoaderManifests},
	KindGameManifest:      {decodeAs[GameManifest], singleton(Origin.GameManifest)},
	KindCategories:        {decodeAs[Categories], singleton(Origin.Categories)},
	KindReportTypes:       {decodeAs[ReportTypes], singleton(Origin.ReportTypes)},
	KindLoaders:           {decodeAs[Loaders], singleton(Origin.Loaders)},
	KindGameVersions:      {decodeAs[GameVersions], singleton(Origin.GameVersions)},
	KindDonationPlatforms: {decodeAs[DonationPlatforms], singleton(Origin.DonationPlatforms)},
	KindContentHash:       {decodeAs[ContentHash], fetchContentHashes},
	KindContentUpdate:     {decodeAs[ContentUpdate], fetchContentUpdates},
}

func opsFor(k Kind) (kindOps, bool) {
	if !k.Valid() {
		return kindOps{}, false
	}
	return ops[k], true
}

func decodeAs[V Value](payload []byte, maxBytes int) (Value, error) {
	v, err := codec.Limit[V]{Inner: codec.JSON[V]{}, MaxDecode: maxBytes}.Decode(payload)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeValue decodes a stored payload into the concrete type of kind k.
func DecodeValue(k Kind, payload []byte) (Value, error) {
	o, ok := opsFor(k)
	if !ok {
		return nil, ErrUnknownKind
	}
	return o.decode(payload, 0)
}
