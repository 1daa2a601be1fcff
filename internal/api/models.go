package api

// colorsPayload is the v2 wire form: one hex color per group in wiring
// order, or a single color to broadcast on input.
type colorsPayload struct {
	Colors []string `json:"colors"`
}

// savePresetRequest names a state to save. Empty Colors snapshots the
// current state.
type savePresetRequest struct {
	Name   string   `json:"name"`
	Colors []string `json:"colors"`
}

type errorResponse struct {
	Error string `json:"error"`
}
