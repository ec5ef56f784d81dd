package broadcast

import "strings"

// ChannelName derives the broadcast channel from a source's display name:
// uppercase, whitespace runs collapsed to a single underscore.
// "Vessel Alongside" -> "VESSEL_ALONGSIDE". Pure function — the publishing
// side and any collaborator predicting a channel name for an initial-state
// request must agree on it.
func ChannelName(sourceName string) string {
	return strings.ToUpper(strings.Join(strings.Fields(sourceName), "_"))
}
