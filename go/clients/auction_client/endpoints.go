package auction_client

const (
	// Local gateway
	DefaultBaseURL = "http://localhost:8080"

	// API Endpoints
	loadStateEndpoint = "/api/loads/%s/state"
	statsEndpoint     = "/ws/stats"
)
