package registry

// Aggregator and portfolio provider endpoints. Configuration can override
// these per provider, mainly so tests can point clients at a local server.
const (
	LiFiBaseURL   = "https://li.quest/v1"
	BebopBaseURL  = "https://api.bebop.xyz"
	ZerionBaseURL = "https://api.zerion.io/v1"
)
