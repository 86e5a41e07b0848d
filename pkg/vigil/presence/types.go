// Package presence holds the per-subject presence state table and the
// reconciler that merges incoming snapshots into it.
package presence

// MusicServiceName is the activity name the upstream uses for its
// dedicated music integration. An activity by this name is extracted
// from the generic list when a music summary is present, so it is not
// rendered twice.
const MusicServiceName = "Spotify"

// Record is the full presence snapshot for one subject. Apart from the
// music extraction the fields are pass-through data from the upstream.
type Record struct {
	User            User         `json:"discord_user"`
	Status          string       `json:"discord_status"`
	Activities      []Activity   `json:"activities"`
	ClientStatus    ClientStatus `json:"client_status"`
	Spotify         *Activity    `json:"spotify,omitempty"`
	ActiveOnDesktop bool         `json:"active_on_discord_desktop,omitempty"`
	ActiveOnMobile  bool         `json:"active_on_discord_mobile,omitempty"`
	ActiveOnWeb     bool         `json:"active_on_discord_web,omitempty"`
}

// User identifies the subject the record belongs to.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
	Avatar        string `json:"avatar,omitempty"`
	Bot           bool   `json:"bot,omitempty"`
	PublicFlags   int    `json:"public_flags,omitempty"`
}

// Activity is one entry of a subject's activity list. The same shape is
// used for the dedicated music summary.
type Activity struct {
	Type       int         `json:"type"`
	Name       string      `json:"name"`
	Details    string      `json:"details,omitempty"`
	State      string      `json:"state,omitempty"`
	URL        string      `json:"url,omitempty"`
	Album      string      `json:"album,omitempty"`
	SyncID     string      `json:"sync_id,omitempty"`
	Timestamps *Timestamps `json:"timestamps,omitempty"`
	Assets     *Assets     `json:"assets,omitempty"`
	Emoji      *Emoji      `json:"emoji,omitempty"`
	Party      *Party      `json:"party,omitempty"`
	Flags      int         `json:"flags,omitempty"`
}

// Timestamps are unix milliseconds.
type Timestamps struct {
	Start int64 `json:"start,omitempty"`
	End   int64 `json:"end,omitempty"`
}

// Assets carry the activity's artwork references.
type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

// Emoji decorates a custom status activity.
type Emoji struct {
	Name     string `json:"name"`
	ID       string `json:"id,omitempty"`
	Animated bool   `json:"animated,omitempty"`
}

// Party describes a shared activity session.
type Party struct {
	ID   string `json:"id,omitempty"`
	Size []int  `json:"size,omitempty"`
}

// ClientStatus flags which platforms the subject is active on.
type ClientStatus struct {
	Desktop bool `json:"desktop,omitempty"`
	Mobile  bool `json:"mobile,omitempty"`
	Web     bool `json:"web,omitempty"`
}

// State is the reconciled view of one subject. A subject that was
// subscribed but has no data yet is Pending; once a snapshot arrives
// Record is set and Music holds the extracted music activity, if any.
type State struct {
	Pending bool
	Record  *Record
	Music   *Activity
}
