package model

//nolint:tagliatelle // device compatibility
type CtfNode struct {
	Name       string  `json:"name"`
	IPv4       string  `json:"ipv4"`
	Current    int     `json:"current"`
	CapturedMs []int64 `json:"captured_ms"`
}

// NoTeam is the value of CtfNode.Current when nobody holds the node.
const NoTeam = -1

//nolint:tagliatelle // device compatibility
type Ctf struct {
	TeamNames  []string  `json:"team_names"`
	Nodes      []CtfNode `json:"nodes"`
	TimeLeftMs int64     `json:"time_left_ms"`
}

// CtfUpdate is posted by a CTF node with its own state as nodes[0].
type CtfUpdate struct {
	Type string `json:"type"`
	Ctf  Ctf    `json:"ctf"`
}

//nolint:tagliatelle // device compatibility
type CtfStart struct {
	DurationMs int64 `json:"duration_ms"`
}

// CtfNodeStart is forwarded by the controller to every CTF node.
type CtfNodeStart struct {
	Duration int64 `json:"duration"`
}
