package ctrl

import "github.com/simplefpvtimer/sftctl/pkg/model"

// slot settings forwarded to nodes
var nodeRssiKeys = []string{
	"name", "freq", "peak", "filter", "offset_enter", "offset_leave", "led_color",
}

// ctfNodeSettings contains the receiver settings of all slots. Every CTF node
// listens to all teams.
func ctfNodeSettings(flat map[string]any) map[string]any {
	ret := nodeCommon(flat)
	for i := range model.MaxRssi {
		for _, k := range nodeRssiKeys {
			key := model.RssiKey(i, k)
			if v, ok := flat[key]; ok {
				ret[key] = v
			}
		}
	}
	return ret
}

// raceNodeSettings maps slot idx of the controller to slot 0 of the node.
func raceNodeSettings(flat map[string]any, idx int) map[string]any {
	ret := nodeCommon(flat)
	for _, k := range nodeRssiKeys {
		if v, ok := flat[model.RssiKey(idx, k)]; ok {
			ret[model.RssiKey(0, k)] = v
		}
	}
	return ret
}

func nodeCommon(flat map[string]any) map[string]any {
	return map[string]any{
		"game_mode": flat["game_mode"],
		"led_num":   flat["led_num"],
	}
}
