package snapshot

import "encoding/json"

// SystemsStats is the cluster-wide header plus one record per system.
type SystemsStats struct {
	ClusterId    string        `json:"clusterid"`
	Version      string        `json:"version"`
	AgentVersion string        `json:"agent_version"`
	Count        int           `json:"count"`
	Systems      []SystemStats `json:"systems"`
}

type SystemStats struct {
	Tiers           int            `json:"tiers"`
	Buckets         int            `json:"buckets"`
	Chunks          int64          `json:"chunks"`
	Objects         int64          `json:"objects"`
	Roles           int            `json:"roles"`
	AllocatedSpace  int64          `json:"allocated_space"`
	UsedSpace       int64          `json:"used_space"`
	TotalSpace      int64          `json:"total_space"`
	AssociatedNodes int            `json:"associated_nodes"`
	Properties      NodeProperties `json:"properties"`
}

// NodeProperties is the online/offline split of a system's nodes.
type NodeProperties struct {
	On  int `json:"on"`
	Off int `json:"off"`
}

type OsCounts struct {
	Win   int `json:"win"`
	Osx   int `json:"osx"`
	Linux int `json:"linux"`
	Other int `json:"other"`
}

// NodesStats aggregates every node of every system. Histograms holds each node histogram's discrete counts
// keyed by its master label; they are rendered as top level keys alongside count and os.
type NodesStats struct {
	Count      int
	Os         OsCounts
	Histograms map[string]map[string]int64
}

func (s NodesStats) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(s.Histograms)+2)
	for label, counts := range s.Histograms {
		doc[label] = counts
	}
	doc["count"] = s.Count
	doc["os"] = s.Os
	return json.Marshal(doc)
}

func (s *NodesStats) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	result := NodesStats{Histograms: map[string]map[string]int64{}}
	for key, raw := range doc {
		var err error
		switch key {
		case "count":
			err = json.Unmarshal(raw, &result.Count)
		case "os":
			err = json.Unmarshal(raw, &result.Os)
		default:
			var counts map[string]int64
			err = json.Unmarshal(raw, &counts)
			result.Histograms[key] = counts
		}
		if err != nil {
			return err
		}
	}
	*s = result
	return nil
}

// OpsStats maps operation name to the string rendering of its latency histogram.
type OpsStats map[string]string

// Snapshot is the merged payload of one cycle. A failed cycle yields the empty Snapshot, which marshals to {}.
type Snapshot struct {
	SysStats  *SystemsStats `json:"sys_stats"`
	NodeStats *NodesStats   `json:"node_stats"`
	OpsStats  OpsStats      `json:"ops_stats"`
}

func Empty() *Snapshot {
	return &Snapshot{}
}

// IsEmpty reports whether s carries no data, i.e. it came from a failed cycle.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || (s.SysStats == nil && s.NodeStats == nil && s.OpsStats == nil)
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.IsEmpty() {
		return []byte("{}"), nil
	}
	type payload Snapshot
	return json.Marshal(payload(s))
}
