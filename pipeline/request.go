package pipeline

type Request struct {
	Tid     string `json:"tid"`
	Payload string `json:"payload"`
	// Configurations restricts the run to the named configurations. Empty means all.
	Configurations []string `json:"configurations,omitempty"`
}

type Pipeline func(request Request) <-chan string
