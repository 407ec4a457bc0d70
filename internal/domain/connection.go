package domain

// ConnectionID identifies one attached subscriber for the lifetime of its connection.
type ConnectionID string

func (id ConnectionID) String() string { return string(id) }

// ConnectionSnapshot is a point-in-time view of the live connection set.
type ConnectionSnapshot struct {
	Total    int            `json:"total_connections"`
	ByOrigin map[string]int `json:"connections_by_ip"`
}
