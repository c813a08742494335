package model

// Node is a timer node registered at the controller.
type Node struct {
	IPAddr   string `json:"ipaddr"`
	Name     string `json:"name"`
	LastSeen int64  `json:"last_seen"`
}

//nolint:tagliatelle // device compatibility
type NodeConnect struct {
	IPv4   string `json:"ip4"`
	Name   string `json:"name"`
	Player string `json:"player"`
}

type NodesResponse struct {
	Nodes []Node `json:"nodes"`
}
