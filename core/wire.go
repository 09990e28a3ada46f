package core

// Wire records for the PMD_INFO / PMD_ORDERS channels (spec.md §6). These
// are the payload shapes the core consumes/produces; the concrete
// encoding (JSON over Redis pub/sub, here) lives in the bus package so the
// reconciliation core never imports a transport or codec library.

// InfoCmd is one command entry inside an inbound info frame — the
// deputy's reported actual state for a single command.
type InfoCmd struct {
	SheriffID     uint32 `json:"sheriff_id"`
	Name          string `json:"name"`
	Nickname      string `json:"nickname"`
	Group         string `json:"group"`
	PID           int    `json:"pid"`
	ActualRunID   uint32 `json:"actual_runid"`
	ExitCode      int    `json:"exit_code"`
	CPUUsage      float64 `json:"cpu_usage"`
	MemVsizeBytes uint64  `json:"mem_vsize_bytes"`
	MemRSSBytes   uint64  `json:"mem_rss_bytes"`
	AutoRespawn   bool    `json:"auto_respawn"`
}

// InfoFrame is the PMD_INFO payload: a deputy reporting its actual state.
type InfoFrame struct {
	UTime             int64              `json:"utime"` // microseconds
	Host              string             `json:"host"`
	CPULoad           float64            `json:"cpu_load"`
	PhysMemTotalBytes uint64             `json:"phys_mem_total_bytes"`
	PhysMemFreeBytes  uint64             `json:"phys_mem_free_bytes"`
	Cmds              []InfoCmd          `json:"cmds"`
	Variables         map[string]string  `json:"variables"`
}

// OrdersCmd is one command entry inside an outbound/inbound orders frame —
// a sheriff's desired state for a single command.
type OrdersCmd struct {
	SheriffID    uint32 `json:"sheriff_id"`
	Name         string `json:"name"`
	Nickname     string `json:"nickname"`
	Group        string `json:"group"`
	DesiredRunID uint32 `json:"desired_runid"`
	ForceQuit    int    `json:"force_quit"`
	AutoRespawn  bool   `json:"auto_respawn"`
}

// OrdersFrame is the PMD_ORDERS payload: a sheriff's desired state for one
// deputy.
type OrdersFrame struct {
	UTime       int64             `json:"utime"`
	Host        string            `json:"host"`
	SheriffName string            `json:"sheriff_name"`
	NCmds       int               `json:"ncmds"`
	Cmds        []OrdersCmd       `json:"cmds"`
	VarNames    []string          `json:"varnames"`
	VarVals     []string          `json:"varvals"`
}
