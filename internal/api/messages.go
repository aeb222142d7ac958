// Package api defines the wire messages and gRPC service plumbing for the
// replay buffer RPC surface (§6). It deliberately avoids protoc-generated
// code: messages are plain Go structs carried over a JSON codec registered
// with google.golang.org/grpc, so the service runs on a real grpc.Server
// without a .proto toolchain in this build.
package api

// AutoSelectBatchSize is the sentinel flexible_batch_size value meaning
// "use the table's DefaultFlexibleBatchSize()" (§4.5, §6 Constants).
const AutoSelectBatchSize = 0

// MaxSampleResponseBytes is kMaxSampleResponseSizeBytes (§4.6, §6).
const MaxSampleResponseBytes = 40 * 1024 * 1024

// Chunk is the wire form of an immutable trajectory fragment (§3).
type Chunk struct {
	ChunkKey uint64 `json:"chunk_key"`
	Data     []byte `json:"data"`
}

// ChunkSlice references a chunk by key with byte offsets into its payload,
// one element of an item's flat_trajectory (§3).
type ChunkSlice struct {
	ChunkKey uint64 `json:"chunk_key"`
	Offset   int64  `json:"offset"`
	Length   int64  `json:"length"`
}

// ItemData is the wire form of an Item before chunk resolution (§3).
type ItemData struct {
	ItemKey        uint64       `json:"item_key"`
	Table          string       `json:"table"`
	FlatTrajectory []ChunkSlice `json:"flat_trajectory"`
	Priority       float64      `json:"priority"`
	SendConfirmation bool       `json:"send_confirmation"`
	KeepChunkKeys  []uint64     `json:"keep_chunk_keys"`
}

// InsertStreamRequest is one request frame of the bidi InsertStream RPC
// (§4.3). Either or both fields may be populated.
type InsertStreamRequest struct {
	Chunks []Chunk   `json:"chunks,omitempty"`
	Item   *ItemData `json:"item,omitempty"`
}

// InsertStreamResponse is the confirmation frame written back when an
// inserted item has send_confirmation set (§4.3 step 5).
type InsertStreamResponse struct {
	ItemKey uint64 `json:"item_key"`
}

// PriorityUpdate is one element of a MutatePriorities request (§4.4).
type PriorityUpdate struct {
	ItemKey  uint64  `json:"item_key"`
	Priority float64 `json:"priority"`
}

// MutatePrioritiesRequest updates and/or deletes items in one table (§4.4).
type MutatePrioritiesRequest struct {
	Table      string           `json:"table"`
	Updates    []PriorityUpdate `json:"updates,omitempty"`
	DeleteKeys []uint64         `json:"delete_keys,omitempty"`
}

// MutatePrioritiesResponse is empty; success is the absence of an error.
type MutatePrioritiesResponse struct{}

// ResetRequest drops all items from a table (§4.4).
type ResetRequest struct {
	Table string `json:"table"`
}

// ResetResponse is empty; success is the absence of an error.
type ResetResponse struct{}

// SampleStreamRequest is a client-issued sample request frame (§4.5). A
// single SampleStream may carry more than one of these in sequence.
type SampleStreamRequest struct {
	Table              string `json:"table"`
	NumSamples         int64  `json:"num_samples"`
	FlexibleBatchSize  int64  `json:"flexible_batch_size"`
	RateLimiterTimeout *int64 `json:"rate_limiter_timeout_ms,omitempty"`
}

// SampleInfo is the metadata carried by the first entry of a sampled item
// (§4.6).
type SampleInfo struct {
	ItemKey     uint64  `json:"item_key"`
	Priority    float64 `json:"priority"`
	TimesSampled int64  `json:"times_sampled"`
	Probability float64 `json:"probability"`
	TableSize   int64   `json:"table_size"`
	RateLimited bool    `json:"rate_limited"`
}

// SampleEntry is one entry of one response frame: either the leading
// metadata entry or a data chunk entry of the same sampled item (§4.6).
type SampleEntry struct {
	Info          *SampleInfo `json:"info,omitempty"`
	ChunkKey      uint64      `json:"chunk_key,omitempty"`
	Data          []byte      `json:"data,omitempty"`
	EndOfSequence bool        `json:"end_of_sequence,omitempty"`
}

// SampleStreamResponse is one outgoing response frame, bounded by
// MaxSampleResponseBytes (§4.6).
type SampleStreamResponse struct {
	Entries []SampleEntry `json:"entries"`
}

// CheckpointRequest requests a snapshot of all tables (§4.7).
type CheckpointRequest struct{}

// CheckpointResponse carries the path the snapshot was written to (§4.7).
type CheckpointResponse struct {
	Path string `json:"path"`
}

// TableInfo is one table's self-reported summary, returned verbatim by
// Table.info() (§3, §4.8).
type TableInfo struct {
	Name        string  `json:"name"`
	CurrentSize int64   `json:"current_size"`
	NumEpisodes int64   `json:"num_episodes"`
	NumDeletedEpisodes int64 `json:"num_deleted_episodes"`
	NumUniqueSamplesInserted int64 `json:"num_unique_samples_inserted"`
}

// ServerInfoRequest has no fields; the RPC returns every table's info.
type ServerInfoRequest struct{}

// ServerInfoResponse returns one TableInfo per table plus the service's
// tables_state_id (§4.8).
type ServerInfoResponse struct {
	TableInfo     []TableInfo `json:"table_info"`
	TablesStateIDHi uint64    `json:"tables_state_id_hi"`
	TablesStateIDLo uint64    `json:"tables_state_id_lo"`
}

// InitializeConnectionRequest is the in-process handshake request (§4.10).
type InitializeConnectionRequest struct {
	Pid       int32  `json:"pid"`
	TableName string `json:"table_name"`
}

// InitializeConnectionResponse carries an opaque 64-bit handle that a
// co-located client passes to Service.ResolveHandshakeHandle; it is not a
// memory address. Address 0 means "not co-located, use normal RPC" (§4.10
// step 2).
type InitializeConnectionResponse struct {
	Address uint64 `json:"address"`
}

// InitializeConnectionConfirmation is the client's reply once it has
// materialized its own shared reference from Address (§4.10 step 4).
type InitializeConnectionConfirmation struct {
	OwnershipTransferred bool `json:"ownership_transferred"`
}
