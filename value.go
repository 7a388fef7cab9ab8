package metacache

import (
	"path"
	"strings"
	"time"
)

// Value is a cacheable payload. Every kind has exactly one implementation.
type Value interface {
	Kind() Kind
	// PrimaryKey is the canonical identity of the object within its kind.
	PrimaryKey() string
	// Alias is an optional secondary lookup string (slug, username).
	Alias() (string, bool)
}

type Project struct {
	ID                   string         `json:"id"`
	Slug                 *string        `json:"slug"`
	ProjectType          string         `json:"project_type"`
	Team                 string         `json:"team"`
	Organization         *string        `json:"organization"`
	Title                string         `json:"title"`
	Description          string         `json:"description"`
	Body                 string         `json:"body"`
	Published            time.Time      `json:"published"`
	Updated              time.Time      `json:"updated"`
	Approved             *time.Time     `json:"approved"`
	Status               string         `json:"status"`
	License              License        `json:"license"`
	ClientSide           string         `json:"client_side"`
	ServerSide           string         `json:"server_side"`
	Downloads            uint32         `json:"downloads"`
	Followers            uint32         `json:"followers"`
	Categories           []string       `json:"categories"`
	AdditionalCategories []string       `json:"additional_categories"`
	GameVersions         []string       `json:"game_versions"`
	Loaders              []string       `json:"loaders"`
	Versions             []string       `json:"versions"`
	IconURL              *string        `json:"icon_url"`
	IssuesURL            *string        `json:"issues_url"`
	SourceURL            *string        `json:"source_url"`
	WikiURL              *string        `json:"wiki_url"`
	DiscordURL           *string        `json:"discord_url"`
	DonationURLs         []DonationLink `json:"donation_urls"`
	Gallery              []GalleryItem  `json:"gallery"`
	Color                *uint32        `json:"color"`
}

type License struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	URL  *string `json:"url"`
}

type DonationLink struct {
	ID       string `json:"id"`
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

type GalleryItem struct {
	URL         string    `json:"url"`
	RawURL      string    `json:"raw_url"`
	Featured    bool      `json:"featured"`
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Created     time.Time `json:"created"`
	Ordering    int64     `json:"ordering"`
}

func (Project) Kind() Kind           { return KindProject }
func (p Project) PrimaryKey() string { return p.ID }
func (p Project) Alias() (string, bool) {
	if p.Slug == nil || *p.Slug == "" {
		return "", false
	}
	return *p.Slug, true
}

type Version struct {
	ID            string        `json:"id"`
	ProjectID     string        `json:"project_id"`
	AuthorID      string        `json:"author_id"`
	Featured      bool          `json:"featured"`
	Name          string        `json:"name"`
	VersionNumber string        `json:"version_number"`
	Changelog     string        `json:"changelog"`
	ChangelogURL  *string       `json:"changelog_url"`
	DatePublished time.Time     `json:"date_published"`
	Downloads     uint32        `json:"downloads"`
	VersionType   string        `json:"version_type"`
	Files         []VersionFile `json:"files"`
	Dependencies  []Dependency  `json:"dependencies"`
	GameVersions  []string      `json:"game_versions"`
	Loaders       []string      `json:"loaders"`
}

type VersionFile struct {
	Hashes   map[string]string `json:"hashes"`
	URL      string            `json:"url"`
	Filename string            `json:"filename"`
	Primary  bool              `json:"primary"`
	Size     uint32            `json:"size"`
	FileType *string           `json:"file_type"`
}

type Dependency struct {
	VersionID      *string `json:"version_id"`
	ProjectID      *string `json:"project_id"`
	FileName       *string `json:"file_name"`
	DependencyType string  `json:"dependency_type"`
}

func (Version) Kind() Kind            { return KindVersion }
func (v Version) PrimaryKey() string  { return v.ID }
func (Version) Alias() (string, bool) { return "", false }

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	AvatarURL *string   `json:"avatar_url"`
	Bio       *string   `json:"bio"`
	Created   time.Time `json:"created"`
	Role      string    `json:"role"`
	Badges    uint32    `json:"badges"`
}

func (User) Kind() Kind           { return KindUser }
func (u User) PrimaryKey() string { return u.ID }
func (u User) Alias() (string, bool) {
	return u.Username, u.Username != ""
}

type TeamMember struct {
	TeamID   string `json:"team_id"`
	User     User   `json:"user"`
	IsOwner  bool   `json:"is_owner"`
	Role     string `json:"role"`
	Ordering int64  `json:"ordering"`
}

// Team is the member list of one team. Upstream returns bare member arrays,
// the id is lifted from the members.
type Team struct {
	ID      string       `json:"id"`
	Members []TeamMember `json:"members"`
}

// NewTeam builds a Team from an upstream member list; an empty list has no identity.
func NewTeam(members []TeamMember) Team {
	t := Team{Members: members}
	if len(members) > 0 {
		t.ID = members[0].TeamID
	}
	return t
}

func (Team) Kind() Kind            { return KindTeam }
func (t Team) PrimaryKey() string  { return t.ID }
func (Team) Alias() (string, bool) { return "", false }

type Organization struct {
	ID          string       `json:"id"`
	Slug        string       `json:"slug"`
	Name        string       `json:"name"`
	TeamID      string       `json:"team_id"`
	Description string       `json:"description"`
	IconURL     *string      `json:"icon_url"`
	Color       *uint32      `json:"color"`
	Members     []TeamMember `json:"members"`
}

func (Organization) Kind() Kind           { return KindOrganization }
func (o Organization) PrimaryKey() string { return o.ID }
func (o Organization) Alias() (string, bool) {
	return o.Slug, o.Slug != ""
}

// File maps a content hash to the version that ships it. A nil Match is a
// cached negative result: the hash is unknown upstream.
type File struct {
	Hash  string     `json:"hash"`
	Match *FileMatch `json:"match"`
}

type FileMatch struct {
	ProjectID string `json:"project_id"`
	VersionID string `json:"version_id"`
}

func (File) Kind() Kind            { return KindFile }
func (f File) PrimaryKey() string  { return f.Hash }
func (File) Alias() (string, bool) { return "", false }
func (f File) Resolved() bool      { return f.Match != nil }

type LoaderManifest struct {
	Loader   string         `json:"loader"`
	Manifest ModdedManifest `json:"manifest"`
}

type ModdedManifest struct {
	GameVersions []ModdedGameVersion `json:"game_versions"`
}

type ModdedGameVersion struct {
	ID      string          `json:"id"`
	Stable  bool            `json:"stable"`
	Loaders []LoaderVersion `json:"loaders"`
}

type LoaderVersion struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Stable bool   `json:"stable"`
}

func (LoaderManifest) Kind() Kind            { return KindLoaderManifest }
func (l LoaderManifest) PrimaryKey() string  { return l.Loader }
func (LoaderManifest) Alias() (string, bool) { return "", false }

type GameManifest struct {
	Latest   LatestGameVersion `json:"latest"`
	Versions []GameRelease     `json:"versions"`
}

type LatestGameVersion struct {
	Release  string `json:"release"`
	Snapshot string `json:"snapshot"`
}

type GameRelease struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	URL             string    `json:"url"`
	Time            time.Time `json:"time"`
	ReleaseTime     time.Time `json:"releaseTime"`
	SHA1            string    `json:"sha1"`
	ComplianceLevel uint32    `json:"complianceLevel"`
}

func (GameManifest) Kind() Kind            { return KindGameManifest }
func (GameManifest) PrimaryKey() string    { return SingletonKey }
func (GameManifest) Alias() (string, bool) { return "", false }

type Category struct {
	Name        string `json:"name"`
	ProjectType string `json:"project_type"`
	Header      string `json:"header"`
	Icon        string `json:"icon"`
}

type Categories []Category

func (Categories) Kind() Kind            { return KindCategories }
func (Categories) PrimaryKey() string    { return SingletonKey }
func (Categories) Alias() (string, bool) { return "", false }

type ReportTypes []string

func (ReportTypes) Kind() Kind            { return KindReportTypes }
func (ReportTypes) PrimaryKey() string    { return SingletonKey }
func (ReportTypes) Alias() (string, bool) { return "", false }

type Loader struct {
	Name                  string   `json:"name"`
	Icon                  string   `json:"icon"`
	SupportedProjectTypes []string `json:"supported_project_types"`
}

type Loaders []Loader

func (Loaders) Kind() Kind            { return KindLoaders }
func (Loaders) PrimaryKey() string    { return SingletonKey }
func (Loaders) Alias() (string, bool) { return "", false }

type GameVersion struct {
	Version     string `json:"version"`
	VersionType string `json:"version_type"`
	Date        string `json:"date"`
	Major       bool   `json:"major"`
}

type GameVersions []GameVersion

func (GameVersions) Kind() Kind            { return KindGameVersions }
func (GameVersions) PrimaryKey() string    { return SingletonKey }
func (GameVersions) Alias() (string, bool) { return "", false }

type DonationPlatform struct {
	Short string `json:"short"`
	Name  string `json:"name"`
}

type DonationPlatforms []DonationPlatform

func (DonationPlatforms) Kind() Kind            { return KindDonationPlatforms }
func (DonationPlatforms) PrimaryKey() string    { return SingletonKey }
func (DonationPlatforms) Alias() (string, bool) { return "", false }

const disabledSuffix = ".disabled"

// ContentHash is the locally computed digest of a file under the profiles root.
type ContentHash struct {
	Path        string       `json:"path"`
	Size        uint64       `json:"size"`
	Hash        string       `json:"hash"`
	ProjectType *ProjectType `json:"project_type"`
}

func (ContentHash) Kind() Kind { return KindContentHash }

// PrimaryKey ignores the ".disabled" suffix so that toggling a file keeps its entry.
func (c ContentHash) PrimaryKey() string { return strings.TrimSuffix(c.Path, disabledSuffix) }
func (c ContentHash) Alias() (string, bool) {
	return c.PrimaryKey() + disabledSuffix, true
}

type ProjectType string

const (
	ProjectTypeMod          ProjectType = "mod"
	ProjectTypeDataPack     ProjectType = "datapack"
	ProjectTypeResourcePack ProjectType = "resourcepack"
	ProjectTypeShaderPack   ProjectType = "shaderpack"
)

// ProjectTypeFromPath infers the project type from the folder a file lives in.
func ProjectTypeFromPath(p string) *ProjectType {
	var t ProjectType
	switch path.Base(path.Dir(p)) {
	case "mods":
		t = ProjectTypeMod
	case "datapacks":
		t = ProjectTypeDataPack
	case "resourcepacks":
		t = ProjectTypeResourcePack
	case "shaderpacks":
		t = ProjectTypeShaderPack
	default:
		return nil
	}
	return &t
}

const updateKeySep = "|"

// ContentUpdate records the newest compatible version for a file hash under
// a loader/game-version filter. A nil UpdateVersionID means no update exists.
type ContentUpdate struct {
	Hash            string   `json:"hash"`
	Loaders         []string `json:"loaders"`
	GameVersion     string   `json:"game_version"`
	UpdateVersionID *string  `json:"update_version_id"`
}

func (ContentUpdate) Kind() Kind { return KindContentUpdate }
func (u ContentUpdate) PrimaryKey() string {
	return UpdateKey(u.Hash, u.Loaders, u.GameVersion)
}
func (ContentUpdate) Alias() (string, bool) { return "", false }
func (u ContentUpdate) Available() bool      { return u.UpdateVersionID != nil }

// UpdateKey builds the composite key "hash|loader[+loader...]|game_version".
func UpdateKey(hash string, loaders []string, gameVersion string) string {
	return hash + updateKeySep + strings.Join(loaders, "+") + updateKeySep + gameVersion
}

// ParseUpdateKey splits a composite ContentUpdate key.
func ParseUpdateKey(key string) (hash, loaders, gameVersion string, ok bool) {
	parts := strings.SplitN(key, updateKeySep, 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
