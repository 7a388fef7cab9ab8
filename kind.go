package metacache

import (
	"errors"
	"fmt"
	"time"
)

// Kind tags which concrete payload an entry holds.
type Kind uint8

const (
	KindProject Kind = iota + 1
	KindVersion
	KindUser
	KindTeam
	KindOrganization
	KindFile
	KindLoaderManifest
	KindGameManifest
	KindCategories
	KindReportTypes
	KindLoaders
	KindGameVersions
	KindDonationPlatforms
	KindContentHash
	KindContentUpdate
)

// SingletonKey is the primary key of kinds that only ever have one instance.
const SingletonKey = "0"

const (
	dayTTL   = 24 * time.Hour
	monthTTL = 30 * 24 * time.Hour
)

var ErrUnknownKind = errors.New("metacache: unknown kind")

var kindNames = [...]string{
	KindProject:           "project",
	KindVersion:           "version",
	KindUser:              "user",
	KindTeam:              "team",
	KindOrganization:      "organization",
	KindFile:              "file",
	KindLoaderManifest:    "loader_manifest",
	KindGameManifest:      "game_manifest",
	KindCategories:        "categories",
	KindReportTypes:       "report_types",
	KindLoaders:           "loaders",
	KindGameVersions:      "game_versions",
	KindDonationPlatforms: "donation_platforms",
	KindContentHash:       "content_hash",
	KindContentUpdate:     "content_update",
}

// AllKinds returns every kind in declaration order.
func AllKinds() []Kind {
	out := make([]Kind, 0, len(kindNames)-1)
	for k := KindProject; k <= KindContentUpdate; k++ {
		out = append(out, k)
	}
	return out
}

// String returns the persisted tag of the kind.
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

func (k Kind) Valid() bool { return k >= KindProject && k <= KindContentUpdate }

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k := KindProject; k <= KindContentUpdate; k++ {
		if kindNames[k] == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Freshness is how long a freshly written entry of this kind stays fresh.
// Content-addressed kinds never change for a given key, so they live longer.
func (k Kind) Freshness() time.Duration {
	switch k {
	case KindFile, KindContentHash:
		return monthTTL
	default:
		return dayTTL
	}
}

// Singleton reports whether the kind has exactly one instance stored under SingletonKey.
func (k Kind) Singleton() bool {
	switch k {
	case KindGameManifest, KindCategories, KindReportTypes, KindLoaders,
		KindGameVersions, KindDonationPlatforms:
		return true
	}
	return false
}

// FoldAlias reports whether aliases of this kind match case-insensitively.
// Slugs and usernames are case-insensitive upstream.
func (k Kind) FoldAlias() bool {
	switch k {
	case KindProject, KindUser, KindOrganization:
		return true
	}
	return false
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(k))
	}
	return []byte(kindNames[k]), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
