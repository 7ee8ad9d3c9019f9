// ABOUTME: Command names and request envelope for the hub command API
// ABOUTME: Every call posts {message_id, command, args} to a single endpoint
package protocol

// Command names understood by the hub
const (
	CmdPlayersAll          = "players/all"
	CmdQueueGet            = "player_queues/get"
	CmdQueueGetActive      = "player_queues/get_active_queue"
	CmdQueueItems          = "player_queues/items"
	CmdQueuePlayPause      = "player_queues/play_pause"
	CmdQueueNext           = "player_queues/next"
	CmdQueuePrevious       = "player_queues/previous"
	CmdQueueShuffle        = "player_queues/shuffle"
	CmdQueueSeek           = "player_queues/seek"
	CmdQueueRepeat         = "player_queues/repeat"
	CmdQueuePlayMedia      = "player_queues/play_media"
	CmdPlayersGroupMany    = "players/cmd/group_many"
	CmdPlayersUngroupMany  = "players/cmd/ungroup_many"
	CmdPlayersVolumeSet    = "players/cmd/volume_set"
	QueueOptionReplace     = "replace"
	QueueOptionPlayNext    = "next"
	QueueOptionAddToQueue  = "add"
	QueueOptionReplaceNext = "replace_next"
)

// Args are the structured arguments of a command
type Args map[string]any

// CommandMessage is the request envelope
type CommandMessage struct {
	MessageID string `json:"message_id"`
	Command   string `json:"command"`
	Args      Args   `json:"args,omitempty"`
}
