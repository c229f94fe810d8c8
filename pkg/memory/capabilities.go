package memory

// Capabilities describes which rich memory operations the host exposes. It
// is detected once at startup and passed by value.
type Capabilities struct {
	// Rich is true when memories can be added through the memory API.
	Rich bool

	// Query is true when the memory API can answer similarity queries.
	Query bool
}

// DetectCapabilities reports which of the rich operations are present.
func DetectCapabilities(adder Adder, querier Querier) Capabilities {
	return Capabilities{
		Rich:  adder != nil,
		Query: adder != nil && querier != nil,
	}
}
