// ABOUTME: Hub wire types for players, queues and media items
// ABOUTME: Enums decode unrecognized values to an explicit Unknown variant
package protocol

import "encoding/json"

// PlaybackState is the playback state reported for players and queues
type PlaybackState string

const (
	PlaybackIdle    PlaybackState = "idle"
	PlaybackPaused  PlaybackState = "paused"
	PlaybackPlaying PlaybackState = "playing"
	PlaybackUnknown PlaybackState = "unknown"
)

// UnmarshalJSON maps unrecognized states to PlaybackUnknown
func (s *PlaybackState) UnmarshalJSON(data []byte) error {
	*s = decodeEnum(data, PlaybackUnknown, PlaybackIdle, PlaybackPaused, PlaybackPlaying)
	return nil
}

// RepeatMode is the queue repeat setting
type RepeatMode string

const (
	RepeatOff     RepeatMode = "off"
	RepeatOne     RepeatMode = "one"
	RepeatAll     RepeatMode = "all"
	RepeatUnknown RepeatMode = "unknown"
)

// UnmarshalJSON maps unrecognized modes to RepeatUnknown
func (m *RepeatMode) UnmarshalJSON(data []byte) error {
	*m = decodeEnum(data, RepeatUnknown, RepeatOff, RepeatOne, RepeatAll)
	return nil
}

// Next returns the mode that follows m when cycling off -> all -> one -> off.
// Unknown restarts the cycle at off.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}

// MediaType classifies media items
type MediaType string

const (
	MediaTrack     MediaType = "track"
	MediaAlbum     MediaType = "album"
	MediaArtist    MediaType = "artist"
	MediaPlaylist  MediaType = "playlist"
	MediaRadio     MediaType = "radio"
	MediaFolder    MediaType = "folder"
	MediaPodcast   MediaType = "podcast"
	MediaAudiobook MediaType = "audiobook"
	MediaUnknown   MediaType = "unknown"
)

// UnmarshalJSON maps unrecognized media types to MediaUnknown
func (t *MediaType) UnmarshalJSON(data []byte) error {
	*t = decodeEnum(data, MediaUnknown,
		MediaTrack, MediaAlbum, MediaArtist, MediaPlaylist, MediaRadio,
		MediaFolder, MediaPodcast, MediaAudiobook)
	return nil
}

// PlayerType is a capability/icon hint for players
type PlayerType string

const (
	PlayerTypePlayer     PlayerType = "player"
	PlayerTypeGroup      PlayerType = "group"
	PlayerTypeStereoPair PlayerType = "stereo_pair"
	PlayerTypeLocal      PlayerType = "local"
	PlayerTypeUnknown    PlayerType = "unknown"
)

// UnmarshalJSON maps unrecognized player types to PlayerTypeUnknown
func (t *PlayerType) UnmarshalJSON(data []byte) error {
	*t = decodeEnum(data, PlayerTypeUnknown,
		PlayerTypePlayer, PlayerTypeGroup, PlayerTypeStereoPair, PlayerTypeLocal)
	return nil
}

// decodeEnum never fails: anything that is not one of the known strings is unknown
func decodeEnum[T ~string](data []byte, unknown T, known ...T) T {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return unknown
	}
	for _, k := range known {
		if T(raw) == k {
			return k
		}
	}
	return unknown
}

// Player mirrors a player entity as the hub reports it
type Player struct {
	PlayerID      string        `json:"player_id"`
	Provider      string        `json:"provider,omitempty"`
	Type          PlayerType    `json:"type"`
	Name          string        `json:"name"`
	DisplayName   string        `json:"display_name,omitempty"`
	Available     bool          `json:"available"`
	Powered       *bool         `json:"powered,omitempty"`
	PlaybackState PlaybackState `json:"state"`
	VolumeLevel   *int          `json:"volume_level,omitempty"`
	VolumeMuted   *bool         `json:"volume_muted,omitempty"`
	GroupMembers  []string      `json:"group_childs,omitempty"`
	SyncedTo      *string       `json:"synced_to,omitempty"`
	ActiveSource  string        `json:"active_source,omitempty"`
	CurrentMedia  *CurrentMedia `json:"current_media,omitempty"`
}

// Label returns the name to show for the player
func (p Player) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

// IsGroupLeader reports whether the player has synced children
func (p Player) IsGroupLeader() bool {
	return len(p.GroupMembers) > 0
}

// CurrentMedia summarizes what a player is currently playing
type CurrentMedia struct {
	URI         string    `json:"uri"`
	MediaType   MediaType `json:"media_type"`
	Title       string    `json:"title,omitempty"`
	Artist      string    `json:"artist,omitempty"`
	Album       string    `json:"album,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	Duration    *float64  `json:"duration,omitempty"`
	QueueID     string    `json:"queue_id,omitempty"`
	QueueItemID string    `json:"queue_item_id,omitempty"`
}

// PlayerQueue is the server-owned queue of a player
type PlayerQueue struct {
	QueueID        string        `json:"queue_id"`
	Active         bool          `json:"active"`
	DisplayName    string        `json:"display_name"`
	Available      bool          `json:"available"`
	Items          int           `json:"items"`
	ShuffleEnabled bool          `json:"shuffle_enabled"`
	RepeatMode     RepeatMode    `json:"repeat_mode"`
	CurrentIndex   *int          `json:"current_index,omitempty"`
	ElapsedTime    float64       `json:"elapsed_time"`
	State          PlaybackState `json:"state"`
	CurrentItem    *QueueItem    `json:"current_item,omitempty"`
	NextItem       *QueueItem    `json:"next_item,omitempty"`
}

// QueueItem is one entry of a player queue
type QueueItem struct {
	QueueID       string         `json:"queue_id"`
	QueueItemID   string         `json:"queue_item_id"`
	Name          string         `json:"name"`
	Duration      *float64       `json:"duration,omitempty"`
	SortIndex     int            `json:"sort_index,omitempty"`
	Available     bool           `json:"available"`
	Image         *MediaImage    `json:"image,omitempty"`
	MediaItem     *MediaItem     `json:"media_item,omitempty"`
	StreamDetails *StreamDetails `json:"streamdetails,omitempty"`
}

// Artwork returns the best image reference for the item, or nil
func (q QueueItem) Artwork() *MediaImage {
	if q.Image != nil && q.Image.Path != "" {
		return q.Image
	}
	if q.MediaItem != nil {
		return q.MediaItem.PrimaryImage()
	}
	return nil
}

// StreamDetails is the stream-routing hint attached to queue items
type StreamDetails struct {
	Provider    string    `json:"provider"`
	ItemID      string    `json:"item_id"`
	MediaType   MediaType `json:"media_type,omitempty"`
	StreamTitle string    `json:"stream_title,omitempty"`
	Duration    *float64  `json:"duration,omitempty"`
}

// MediaImage references artwork on the hub or a provider
type MediaImage struct {
	Type               string `json:"type,omitempty"`
	Path               string `json:"path"`
	Provider           string `json:"provider,omitempty"`
	RemotelyAccessible bool   `json:"remotely_accessible,omitempty"`
}

// ItemMapping is a lightweight reference to another media item
type ItemMapping struct {
	ItemID    string    `json:"item_id"`
	Provider  string    `json:"provider"`
	Name      string    `json:"name"`
	URI       string    `json:"uri,omitempty"`
	MediaType MediaType `json:"media_type,omitempty"`
}

// MediaItemMetadata holds optional media item metadata
type MediaItemMetadata struct {
	Images []MediaImage `json:"images,omitempty"`
}

// MediaItem is a full library item (track, album, playlist, radio ...)
type MediaItem struct {
	ItemID    string             `json:"item_id"`
	Provider  string             `json:"provider"`
	Name      string             `json:"name"`
	URI       string             `json:"uri,omitempty"`
	MediaType MediaType          `json:"media_type"`
	Artists   []ItemMapping      `json:"artists,omitempty"`
	Album     *ItemMapping       `json:"album,omitempty"`
	Duration  *float64           `json:"duration,omitempty"`
	Image     *MediaImage        `json:"image,omitempty"`
	Metadata  *MediaItemMetadata `json:"metadata,omitempty"`
}

// ArtistNames joins the item's artist names for display
func (m MediaItem) ArtistNames() string {
	s := ""
	for i, a := range m.Artists {
		if i > 0 {
			s += ", "
		}
		s += a.Name
	}
	return s
}

// PrimaryImage returns the item image, falling back to the first metadata image
func (m MediaItem) PrimaryImage() *MediaImage {
	if m.Image != nil && m.Image.Path != "" {
		return m.Image
	}
	if m.Metadata != nil {
		for i := range m.Metadata.Images {
			if m.Metadata.Images[i].Path != "" {
				return &m.Metadata.Images[i]
			}
		}
	}
	return nil
}

// ResolveURI returns the item URI, building provider://type/id when absent
func (m MediaItem) ResolveURI() string {
	if m.URI != "" {
		return m.URI
	}
	if m.Provider == "" || m.ItemID == "" {
		return ""
	}
	return m.Provider + "://" + string(m.MediaType) + "/" + m.ItemID
}

// BrowseItem is an entry returned while browsing provider folders
type BrowseItem struct {
	ItemID    string    `json:"item_id"`
	Provider  string    `json:"provider"`
	Name      string    `json:"name"`
	URI       string    `json:"uri,omitempty"`
	Path      string    `json:"path,omitempty"`
	MediaType MediaType `json:"media_type"`
}

// AuthProvider describes a login method offered by the hub
type AuthProvider struct {
	ID               string `json:"provider_id"`
	Type             string `json:"provider_type,omitempty"`
	RequiresRedirect bool   `json:"requires_redirect,omitempty"`
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	ProviderID  string           `json:"provider_id"`
	Credentials LoginCredentials `json:"credentials"`
}

// LoginCredentials carries username/password credentials
type LoginCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is the response of POST /auth/login
type LoginResult struct {
	Token   string `json:"token"`
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK reports whether the login produced a usable token
func (r LoginResult) OK() bool {
	if r.Success != nil && !*r.Success {
		return false
	}
	return r.Token != ""
}
